package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the speaker_profiles DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS speaker_profiles (
    id              TEXT              PRIMARY KEY DEFAULT gen_random_uuid(),
    display_name    TEXT              NOT NULL,
    centroid        vector(%d)        NOT NULL,
    feature_stats   JSONB             NOT NULL DEFAULT '{}',
    session_stats   JSONB             NOT NULL DEFAULT '{}',
    weight_total    DOUBLE PRECISION  NOT NULL DEFAULT 0,
    sample_count    BIGINT            NOT NULL DEFAULT 0,
    version         BIGINT            NOT NULL DEFAULT 1,
    session_history TEXT[]            NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    last_updated    TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_speaker_profiles_display_name
    ON speaker_profiles (display_name);

CREATE INDEX IF NOT EXISTS idx_speaker_profiles_centroid
    ON speaker_profiles USING hnsw (centroid vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate ensures the speaker_profiles table, its indexes, and the required
// extensions exist. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Package postgres provides the PostgreSQL-backed profile.Store.
//
// Profiles live in a single speaker_profiles table with the centroid held in
// a pgvector column, so candidate pre-ranking can happen in SQL via the
// cosine distance operator when the population grows large. Optimistic
// concurrency uses a bigint version column: updates are conditional on the
// expected version and bump it by one, giving the merger its
// at-most-one-in-flight-merge-per-profile guarantee without table locks.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, feature.EmbeddingDim)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/tbruckner/voxatlas/internal/profile"
)

var _ profile.Store = (*Store)(nil)

// Store is the PostgreSQL-backed profile store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and runs [Migrate].
//
// embeddingDimensions must match the extractor's embedding length (see
// feature.EmbeddingDim). Changing it after the first migration requires a
// manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("profile store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("profile store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile store: ping: %w: %w", profile.ErrStoreUnavailable, err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const profileColumns = `id, display_name, centroid, feature_stats, session_stats,
       weight_total, sample_count, version, session_history, created_at, last_updated`

// Get implements profile.Store.
func (s *Store) Get(ctx context.Context, id string) (profile.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM speaker_profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, fmt.Errorf("profile store: get %s: %w", id, profile.ErrNotFound)
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("profile store: get %s: %w", id, wrapConnErr(err))
	}
	return p, nil
}

// List implements profile.Store. Results are ordered by ID for determinism.
func (s *Store) List(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM speaker_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("profile store: list: %w", wrapConnErr(err))
	}
	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.Profile, error) {
		return scanProfile(row)
	})
	if err != nil {
		return nil, fmt.Errorf("profile store: scan rows: %w", err)
	}
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	return profiles, nil
}

// Create implements profile.Store. The assigned ID is generated by the
// database default (gen_random_uuid).
func (s *Store) Create(ctx context.Context, p profile.Profile) (string, error) {
	featureStats, sessionStats, err := marshalStats(p)
	if err != nil {
		return "", fmt.Errorf("profile store: create: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO speaker_profiles
		    (display_name, centroid, feature_stats, session_stats,
		     weight_total, sample_count, version, session_history, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $9)
		RETURNING id`,
		p.DisplayName,
		pgvector.NewVector(p.Centroid),
		featureStats,
		sessionStats,
		p.WeightTotal,
		p.SampleCount,
		p.SessionHistory,
		p.CreatedAt,
		p.LastUpdated,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("profile store: create: %w", wrapConnErr(err))
	}
	return id, nil
}

// Update implements profile.Store. The write succeeds only when the stored
// version still equals expectedVersion; otherwise nothing changes and
// [profile.ErrVersionConflict] is returned.
func (s *Store) Update(ctx context.Context, p profile.Profile, expectedVersion int64) error {
	featureStats, sessionStats, err := marshalStats(p)
	if err != nil {
		return fmt.Errorf("profile store: update %s: %w", p.ID, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE speaker_profiles SET
		    display_name    = $2,
		    centroid        = $3,
		    feature_stats   = $4,
		    session_stats   = $5,
		    weight_total    = $6,
		    sample_count    = $7,
		    session_history = $8,
		    last_updated    = $9,
		    version         = version + 1
		WHERE id = $1 AND version = $10`,
		p.ID,
		p.DisplayName,
		pgvector.NewVector(p.Centroid),
		featureStats,
		sessionStats,
		p.WeightTotal,
		p.SampleCount,
		p.SessionHistory,
		p.LastUpdated,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("profile store: update %s: %w", p.ID, wrapConnErr(err))
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a vanished profile.
		if _, err := s.Get(ctx, p.ID); errors.Is(err, profile.ErrNotFound) {
			return fmt.Errorf("profile store: update %s: %w", p.ID, profile.ErrNotFound)
		}
		return fmt.Errorf("profile store: update %s: expected version %d: %w",
			p.ID, expectedVersion, profile.ErrVersionConflict)
	}
	return nil
}

func marshalStats(p profile.Profile) (featureStats, sessionStats []byte, err error) {
	featureStats, err = json.Marshal(p.FeatureStats)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal feature stats: %w", err)
	}
	sessionStats, err = json.Marshal(p.SessionStats)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal session stats: %w", err)
	}
	return featureStats, sessionStats, nil
}

func scanProfile(row pgx.Row) (profile.Profile, error) {
	var (
		p            profile.Profile
		vec          pgvector.Vector
		featureStats []byte
		sessionStats []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&vec,
		&featureStats,
		&sessionStats,
		&p.WeightTotal,
		&p.SampleCount,
		&p.Version,
		&p.SessionHistory,
		&p.CreatedAt,
		&p.LastUpdated,
	); err != nil {
		return profile.Profile{}, err
	}
	p.Centroid = vec.Slice()
	if err := json.Unmarshal(featureStats, &p.FeatureStats); err != nil {
		return profile.Profile{}, fmt.Errorf("unmarshal feature stats: %w", err)
	}
	if err := json.Unmarshal(sessionStats, &p.SessionStats); err != nil {
		return profile.Profile{}, fmt.Errorf("unmarshal session stats: %w", err)
	}
	return p, nil
}

// wrapConnErr tags connection-level failures with ErrStoreUnavailable so the
// pipeline can treat them as fatal for the run.
func wrapConnErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err // server answered; not an availability problem
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", profile.ErrStoreUnavailable, err)
}

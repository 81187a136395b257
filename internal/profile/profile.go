// Package profile defines the persisted speaker identity record, the store
// contract it lives behind, and the merger that folds confirmed session
// signatures into it.
//
// A profile's centroid embedding is maintained incrementally as the
// confidence-weighted mean over every signature ever merged; recomputing it
// from scratch over the same signatures with the same weights must agree
// with the incremental value within numerical tolerance. All mutation
// funnels through [Merger.CreateNew] and [Merger.Merge], which serialise
// per-profile updates via the store's optimistic-concurrency token.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/tbruckner/voxatlas/internal/signature"
)

// Store errors. Implementations must return these (possibly wrapped) so the
// merger can distinguish retryable conflicts from fatal failures.
var (
	// ErrNotFound reports a profile ID with no persisted record.
	ErrNotFound = errors.New("profile: not found")

	// ErrVersionConflict reports an Update whose expected version was stale.
	// The caller re-reads current state and retries.
	ErrVersionConflict = errors.New("profile: version conflict")

	// ErrStoreUnavailable reports an unreachable persistence layer. Fatal
	// for the whole run; nothing is partially committed.
	ErrStoreUnavailable = errors.New("profile: store unavailable")
)

// RollingStats accumulates conversational totals across every session merged
// into a profile.
type RollingStats struct {
	Sessions      int     `json:"sessions"`
	TotalTurns    int     `json:"total_turns"`
	TotalDuration float64 `json:"total_duration"`
	TotalWords    int     `json:"total_words"`
}

// Profile is the persisted, cross-session identity record for one real
// speaker.
type Profile struct {
	ID          string
	DisplayName string

	// Centroid is the weighted mean embedding over all merged signatures.
	Centroid []float32

	// FeatureStats is the weighted mean of merged signatures' scalar stats.
	FeatureStats signature.FeatureStats

	SessionStats RollingStats

	// WeightTotal is the accumulated merge weight, the denominator mass of
	// the incremental weighted mean.
	WeightTotal float64

	// SampleCount is the number of signatures merged to date, including the
	// founding one. Monotonically non-decreasing.
	SampleCount int64

	// Version is the optimistic-concurrency token, incremented by the store
	// on every successful update.
	Version int64

	// SessionHistory lists contributing session IDs in merge order.
	SessionHistory []string

	CreatedAt   time.Time
	LastUpdated time.Time
}

// Clone returns a deep copy. Stores return clones so callers can never
// mutate shared state.
func (p Profile) Clone() Profile {
	out := p
	out.Centroid = append([]float32(nil), p.Centroid...)
	out.SessionHistory = append([]string(nil), p.SessionHistory...)
	return out
}

// Store is the persistence contract for speaker profiles. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the profile with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Profile, error)

	// List returns a consistent snapshot of the full profile population.
	List(ctx context.Context) ([]Profile, error)

	// Create persists a new profile and returns its assigned ID. The
	// profile's ID field is ignored on input.
	Create(ctx context.Context, p Profile) (string, error)

	// Update replaces the stored profile if its current version equals
	// expectedVersion, returning [ErrVersionConflict] otherwise. On success
	// the stored version is incremented.
	Update(ctx context.Context, p Profile, expectedVersion int64) error
}

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbruckner/voxatlas/internal/signature"
)

const (
	// referenceSessionSeconds normalises a signature's voiced duration into
	// a merge weight: a session with this much voiced audio weighs 1.0.
	referenceSessionSeconds = 60.0

	defaultMaxWeight  = 5.0
	defaultMaxRetries = 3
)

// Merger applies confirmed match decisions to the profile store. Updates use
// the store's optimistic-concurrency token with bounded retry, so at most
// one in-flight merge per profile wins each round and no update is ever
// silently overwritten.
type Merger struct {
	store      Store
	maxWeight  float64
	maxRetries int
	now        func() time.Time
}

// MergerOption configures a [Merger].
type MergerOption func(*Merger)

// WithMaxWeight clamps the merge weight of a single signature, preventing
// one long session from dominating a profile built from many short ones.
// Default: 5 (five reference sessions' worth of audio).
func WithMaxWeight(w float64) MergerOption {
	return func(m *Merger) { m.maxWeight = w }
}

// WithMaxRetries bounds the number of re-read-and-retry rounds after a
// version conflict before the merge is surfaced as failed. Default: 3.
func WithMaxRetries(n int) MergerOption {
	return func(m *Merger) { m.maxRetries = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MergerOption {
	return func(m *Merger) { m.now = now }
}

// NewMerger returns a Merger writing through store.
func NewMerger(store Store, opts ...MergerOption) *Merger {
	m := &Merger{
		store:      store,
		maxWeight:  defaultMaxWeight,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Weight converts a signature's total voiced duration into its clamped merge
// weight. Exposed so tests can recompute centroids from scratch with
// identical weighting.
func (m *Merger) Weight(totalVoicedDuration float64) float64 {
	w := totalVoicedDuration / referenceSessionSeconds
	if w > m.maxWeight {
		w = m.maxWeight
	}
	if w <= 0 {
		w = 0
	}
	return w
}

// CreateNew allocates a profile founded on sig and returns the stored copy.
func (m *Merger) CreateNew(ctx context.Context, sig signature.Signature, displayName, sessionID string) (Profile, error) {
	if displayName == "" {
		displayName = sig.Label
	}
	now := m.now()
	p := Profile{
		DisplayName:  displayName,
		Centroid:     append([]float32(nil), sig.Centroid...),
		FeatureStats: sig.Stats,
		SessionStats: RollingStats{
			Sessions:      1,
			TotalTurns:    sig.SessionStats.TurnCount,
			TotalDuration: sig.SessionStats.TotalDuration,
			TotalWords:    sig.SessionStats.WordCount,
		},
		WeightTotal:    m.Weight(sig.TotalVoicedDuration),
		SampleCount:    1,
		SessionHistory: []string{sessionID},
		CreatedAt:      now,
		LastUpdated:    now,
	}
	id, err := m.store.Create(ctx, p)
	if err != nil {
		return Profile{}, fmt.Errorf("merger: create profile: %w", err)
	}
	p.ID = id
	slog.Info("created speaker profile",
		"profile_id", id,
		"display_name", displayName,
		"session_id", sessionID,
	)
	return p, nil
}

// Merge folds sig into the profile identified by profileID using the
// incremental weighted mean, retrying on version conflicts up to the
// configured bound. The update is all-or-nothing: on any error the stored
// profile is unchanged.
func (m *Merger) Merge(ctx context.Context, profileID string, sig signature.Signature, sessionID string) (Profile, error) {
	w := m.Weight(sig.TotalVoicedDuration)

	for attempt := 0; ; attempt++ {
		p, err := m.store.Get(ctx, profileID)
		if err != nil {
			return Profile{}, fmt.Errorf("merger: read profile %s: %w", profileID, err)
		}

		merged := merge(p, sig, w, sessionID, m.now())
		err = m.store.Update(ctx, merged, p.Version)
		if err == nil {
			slog.Info("merged signature into profile",
				"profile_id", profileID,
				"session_id", sessionID,
				"weight", w,
				"sample_count", merged.SampleCount,
			)
			return merged, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Profile{}, fmt.Errorf("merger: update profile %s: %w", profileID, err)
		}
		if attempt+1 >= m.maxRetries {
			return Profile{}, fmt.Errorf("merger: profile %s still conflicted after %d attempts: %w",
				profileID, m.maxRetries, err)
		}
		slog.Debug("merge conflict, retrying", "profile_id", profileID, "attempt", attempt+1)
	}
}

// merge computes the post-merge profile. Pure; the caller persists it.
func merge(p Profile, sig signature.Signature, w float64, sessionID string, now time.Time) Profile {
	out := p.Clone()
	total := p.WeightTotal + w

	if total > 0 {
		for i := range out.Centroid {
			if i < len(sig.Centroid) {
				out.Centroid[i] = float32((float64(p.Centroid[i])*p.WeightTotal + float64(sig.Centroid[i])*w) / total)
			}
		}
		out.FeatureStats = signature.FeatureStats{
			PitchMean:        (p.FeatureStats.PitchMean*p.WeightTotal + sig.Stats.PitchMean*w) / total,
			PitchStdev:       (p.FeatureStats.PitchStdev*p.WeightTotal + sig.Stats.PitchStdev*w) / total,
			EnergyMean:       (p.FeatureStats.EnergyMean*p.WeightTotal + sig.Stats.EnergyMean*w) / total,
			EnergyStdev:      (p.FeatureStats.EnergyStdev*p.WeightTotal + sig.Stats.EnergyStdev*w) / total,
			SpectralCentroid: (p.FeatureStats.SpectralCentroid*p.WeightTotal + sig.Stats.SpectralCentroid*w) / total,
			SpectralRolloff:  (p.FeatureStats.SpectralRolloff*p.WeightTotal + sig.Stats.SpectralRolloff*w) / total,
		}
	}

	out.WeightTotal = total
	out.SampleCount = p.SampleCount + 1
	out.SessionStats.Sessions++
	out.SessionStats.TotalTurns += sig.SessionStats.TurnCount
	out.SessionStats.TotalDuration += sig.SessionStats.TotalDuration
	out.SessionStats.TotalWords += sig.SessionStats.WordCount
	out.SessionHistory = append(out.SessionHistory, sessionID)
	out.LastUpdated = now
	return out
}

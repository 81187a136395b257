package profile_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tbruckner/voxatlas/internal/profile"
	"github.com/tbruckner/voxatlas/internal/profile/mock"
	"github.com/tbruckner/voxatlas/internal/signature"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func testSignature(label string, voiced float64, centroid ...float32) signature.Signature {
	return signature.Signature{
		Label:    label,
		Centroid: centroid,
		Stats: signature.FeatureStats{
			PitchMean:  120 + voiced, // any distinct values will do
			EnergyMean: 0.3,
		},
		SessionStats: signature.SessionStats{
			TurnCount:     3,
			TotalDuration: voiced,
			WordCount:     40,
		},
		TotalVoicedDuration: voiced,
	}
}

func TestCreateNew(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	m := profile.NewMerger(st, profile.WithClock(fixedClock))
	sig := testSignature("A", 30, 1, 0)

	created, err := m.CreateNew(context.Background(), sig, "Alice", "session-1")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}
	if created.ID == "" {
		t.Error("created profile has no ID")
	}
	if created.DisplayName != "Alice" {
		t.Errorf("DisplayName=%q, want Alice", created.DisplayName)
	}
	if created.SampleCount != 1 {
		t.Errorf("SampleCount=%d, want 1", created.SampleCount)
	}
	if want := m.Weight(30); created.WeightTotal != want {
		t.Errorf("WeightTotal=%g, want %g", created.WeightTotal, want)
	}
	if len(created.SessionHistory) != 1 || created.SessionHistory[0] != "session-1" {
		t.Errorf("SessionHistory=%v, want [session-1]", created.SessionHistory)
	}
	if !created.CreatedAt.Equal(fixedClock()) {
		t.Errorf("CreatedAt=%v, want fixed clock", created.CreatedAt)
	}

	stored, err := st.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("stored Version=%d, want 1", stored.Version)
	}
	if stored.Centroid[0] != 1 || stored.Centroid[1] != 0 {
		t.Errorf("stored Centroid=%v, want [1 0]", stored.Centroid)
	}
}

func TestCreateNew_FallsBackToLabel(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	m := profile.NewMerger(st)
	created, err := m.CreateNew(context.Background(), testSignature("S0", 30, 1), "", "s")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}
	if created.DisplayName != "S0" {
		t.Errorf("DisplayName=%q, want the speaker label S0", created.DisplayName)
	}
}

func TestMerge_IncrementalMatchesFromScratch(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	m := profile.NewMerger(st, profile.WithClock(fixedClock))
	ctx := context.Background()

	sigs := []signature.Signature{
		testSignature("A", 30, 1, 0, 0),
		testSignature("A", 90, 0, 1, 0),
		testSignature("A", 45, 0, 0, 1),
		testSignature("A", 400, 0.5, 0.5, 0), // clamped by max weight
	}

	created, err := m.CreateNew(ctx, sigs[0], "Alice", "s0")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}
	var final profile.Profile
	for i, sig := range sigs[1:] {
		final, err = m.Merge(ctx, created.ID, sig, "s")
		if err != nil {
			t.Fatalf("Merge %d returned error: %v", i+1, err)
		}
	}

	// Recompute the centroid from scratch with the same clamped weights.
	var total float64
	want := make([]float64, 3)
	for _, sig := range sigs {
		w := m.Weight(sig.TotalVoicedDuration)
		total += w
		for i, v := range sig.Centroid {
			want[i] += float64(v) * w
		}
	}
	for i := range want {
		want[i] /= total
		if math.Abs(float64(final.Centroid[i])-want[i]) > 1e-6 {
			t.Errorf("Centroid[%d]=%g, want %g (incremental mean diverged)", i, final.Centroid[i], want[i])
		}
	}
	if math.Abs(final.WeightTotal-total) > 1e-9 {
		t.Errorf("WeightTotal=%g, want %g", final.WeightTotal, total)
	}
	if final.SampleCount != int64(len(sigs)) {
		t.Errorf("SampleCount=%d, want %d", final.SampleCount, len(sigs))
	}
	if final.SessionStats.Sessions != len(sigs) {
		t.Errorf("Sessions=%d, want %d", final.SessionStats.Sessions, len(sigs))
	}
}

func TestWeight_Clamping(t *testing.T) {
	t.Parallel()

	m := profile.NewMerger(mock.NewStore(), profile.WithMaxWeight(5))
	if got := m.Weight(60); got != 1 {
		t.Errorf("Weight(60)=%g, want 1", got)
	}
	if got := m.Weight(30); got != 0.5 {
		t.Errorf("Weight(30)=%g, want 0.5", got)
	}
	if got := m.Weight(10000); got != 5 {
		t.Errorf("Weight(10000)=%g, want clamp at 5", got)
	}
	if got := m.Weight(0); got != 0 {
		t.Errorf("Weight(0)=%g, want 0", got)
	}
}

func TestMerge_RetriesOnConflict(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	m := profile.NewMerger(st, profile.WithMaxRetries(3))
	ctx := context.Background()

	created, err := m.CreateNew(ctx, testSignature("A", 60, 1, 0), "Alice", "s0")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}

	st.UpdateConflicts = 2 // two stale rounds, third succeeds
	merged, err := m.Merge(ctx, created.ID, testSignature("A", 60, 0, 1), "s1")
	if err != nil {
		t.Fatalf("Merge returned error despite retry budget: %v", err)
	}
	if merged.SampleCount != 2 {
		t.Errorf("SampleCount=%d, want 2", merged.SampleCount)
	}
}

func TestMerge_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	m := profile.NewMerger(st, profile.WithMaxRetries(3))
	ctx := context.Background()

	created, err := m.CreateNew(ctx, testSignature("A", 60, 1, 0), "Alice", "s0")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}

	st.UpdateConflicts = 10
	_, err = m.Merge(ctx, created.ID, testSignature("A", 60, 0, 1), "s1")
	if !errors.Is(err, profile.ErrVersionConflict) {
		t.Fatalf("err=%v, want wrapped ErrVersionConflict", err)
	}

	// The stored profile must be unchanged by the failed merge.
	stored, err := st.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.SampleCount != 1 {
		t.Errorf("failed merge mutated the profile: SampleCount=%d, want 1", stored.SampleCount)
	}
}

func TestMerge_UnknownProfile(t *testing.T) {
	t.Parallel()

	m := profile.NewMerger(mock.NewStore())
	_, err := m.Merge(context.Background(), "no-such-id", testSignature("A", 60, 1), "s")
	if !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("err=%v, want wrapped ErrNotFound", err)
	}
}

func TestMerge_ConcurrentMergesAllLand(t *testing.T) {
	t.Parallel()

	st := mock.NewStore()
	// Every loser re-reads and retries; with enough retry budget all
	// writers eventually land.
	m := profile.NewMerger(st, profile.WithMaxRetries(20))
	ctx := context.Background()

	created, err := m.CreateNew(ctx, testSignature("A", 60, 1, 0), "Alice", "s0")
	if err != nil {
		t.Fatalf("CreateNew returned error: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Merge(ctx, created.ID, testSignature("A", 60, 0, 1), "s")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	stored, err := st.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.SampleCount != 1+writers {
		t.Errorf("SampleCount=%d, want %d", stored.SampleCount, 1+writers)
	}
	if stored.Version != 1+writers {
		t.Errorf("Version=%d, want %d", stored.Version, 1+writers)
	}
	if math.Abs(stored.WeightTotal-float64(1+writers)) > 1e-9 {
		t.Errorf("WeightTotal=%g, want %d", stored.WeightTotal, 1+writers)
	}
}

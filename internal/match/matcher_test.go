package match_test

import (
	"math"
	"testing"

	"github.com/tbruckner/voxatlas/internal/match"
	"github.com/tbruckner/voxatlas/internal/profile"
	"github.com/tbruckner/voxatlas/internal/signature"
)

func sig(centroid ...float32) signature.Signature {
	return signature.Signature{Label: "A", Centroid: centroid}
}

func prof(id, name string, centroid ...float32) profile.Profile {
	return profile.Profile{ID: id, DisplayName: name, Centroid: centroid}
}

func TestMatch_EmptyPopulationIsNoMatch(t *testing.T) {
	t.Parallel()

	res := match.New().Match(sig(1, 0), nil, nil)
	if res.Band != match.BandNoMatch {
		t.Errorf("Band=%q, want %q", res.Band, match.BandNoMatch)
	}
	if res.Candidates == nil || len(res.Candidates) != 0 {
		t.Errorf("Candidates=%v, want empty non-nil slice", res.Candidates)
	}
}

func TestMatch_Banding(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0)) // pure cosine

	cases := []struct {
		name     string
		centroid []float32
		want     match.Band
	}{
		// cos((1,0),(1,0)) = 1
		{"identical vector auto-matches", []float32{1, 0}, match.BandAutoMatch},
		// cos((1,0),(0.78, 0.6258...)) ≈ 0.78
		{"moderate similarity is ambiguous", unitAt(0.78), match.BandAmbiguous},
		// cos((1,0),(0.5, 0.866)) = 0.5
		{"low similarity is no match", unitAt(0.5), match.BandNoMatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := m.Match(sig(1, 0), []profile.Profile{prof("p1", "P", tc.centroid...)}, nil)
			if res.Band != tc.want {
				t.Errorf("Band=%q, want %q", res.Band, tc.want)
			}
		})
	}
}

// unitAt returns a unit vector whose cosine against (1,0) equals c.
func unitAt(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func TestMatch_AutoMatchReturnsSingleTopCandidate(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0))
	population := []profile.Profile{
		prof("p-low", "Low", unitAt(0.75)...),
		prof("p-top", "Top", 1, 0),
	}
	res := m.Match(sig(1, 0), population, nil)
	if res.Band != match.BandAutoMatch {
		t.Fatalf("Band=%q, want %q", res.Band, match.BandAutoMatch)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].ProfileID != "p-top" {
		t.Fatalf("Candidates=%v, want only p-top", res.Candidates)
	}
	if math.Abs(res.Candidates[0].Similarity-1) > 1e-6 {
		t.Errorf("Similarity=%g, want 1", res.Candidates[0].Similarity)
	}
}

func TestMatch_AmbiguousTrimsToTopKInBand(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0), match.WithTopK(3))
	population := []profile.Profile{
		prof("p1", "One", unitAt(0.82)...),
		prof("p2", "Two", unitAt(0.78)...),
		prof("p3", "Three", unitAt(0.72)...),
		prof("p4", "Four", unitAt(0.71)...),
		prof("p5", "BelowBand", unitAt(0.3)...),
	}
	res := m.Match(sig(1, 0), population, nil)
	if res.Band != match.BandAmbiguous {
		t.Fatalf("Band=%q, want %q", res.Band, match.BandAmbiguous)
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(res.Candidates))
	}
	wantOrder := []string{"p1", "p2", "p3"}
	for i, id := range wantOrder {
		if res.Candidates[i].ProfileID != id {
			t.Errorf("Candidates[%d].ProfileID=%q, want %q", i, res.Candidates[i].ProfileID, id)
		}
	}
	// Ranking must be strictly descending.
	for i := 1; i < len(res.Candidates); i++ {
		if res.Candidates[i].Similarity > res.Candidates[i-1].Similarity {
			t.Errorf("candidates not sorted: [%d]=%g > [%d]=%g",
				i, res.Candidates[i].Similarity, i-1, res.Candidates[i-1].Similarity)
		}
	}
}

func TestMatch_AmbiguousDropsCandidatesBelowBand(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0), match.WithTopK(3))
	population := []profile.Profile{
		prof("p1", "One", unitAt(0.80)...),
		prof("p2", "Two", unitAt(0.40)...),
	}
	res := m.Match(sig(1, 0), population, nil)
	if res.Band != match.BandAmbiguous {
		t.Fatalf("Band=%q, want %q", res.Band, match.BandAmbiguous)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].ProfileID != "p1" {
		t.Fatalf("Candidates=%v, want only p1 (p2 is below the ambiguous floor)", res.Candidates)
	}
}

func TestMatch_FeaturePenaltyDemotesMismatchedStats(t *testing.T) {
	t.Parallel()

	// Near-identical centroids (cosine 0.9), but the profile's pitch and
	// energy are far from the signature's. With the penalty enabled the
	// score drops out of the auto band.
	s := sig(1, 0)
	s.Stats = signature.FeatureStats{PitchMean: 100, PitchStdev: 5, EnergyMean: 0.2, EnergyStdev: 0.01}
	p := prof("p1", "One", unitAt(0.9)...)
	p.FeatureStats = signature.FeatureStats{PitchMean: 300, PitchStdev: 5, EnergyMean: 0.8, EnergyStdev: 0.01}

	plain := match.New(match.WithFeaturePenalty(0)).Match(s, []profile.Profile{p}, nil)
	if plain.Band != match.BandAutoMatch {
		t.Fatalf("penalty off: Band=%q, want %q", plain.Band, match.BandAutoMatch)
	}

	penalised := match.New().Match(s, []profile.Profile{p}, nil)
	if penalised.Band == match.BandAutoMatch {
		t.Errorf("penalty on: still %q despite conflicting scalar stats", penalised.Band)
	}
	if len(penalised.Candidates) > 0 && penalised.Candidates[0].Similarity >= plain.Candidates[0].Similarity {
		t.Errorf("penalised similarity %g not below plain %g",
			penalised.Candidates[0].Similarity, plain.Candidates[0].Similarity)
	}
}

func TestMatch_TieBreakByProfileID(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0), match.WithTopK(2))
	population := []profile.Profile{
		prof("p-b", "B", unitAt(0.75)...),
		prof("p-a", "A", unitAt(0.75)...),
	}
	res := m.Match(sig(1, 0), population, nil)
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].ProfileID != "p-a" {
		t.Errorf("tie broken wrong: first candidate %q, want p-a", res.Candidates[0].ProfileID)
	}
}

func TestMatch_NameHintAnnotation(t *testing.T) {
	t.Parallel()

	m := match.New(match.WithFeaturePenalty(0))
	population := []profile.Profile{
		prof("p1", "Alice", unitAt(0.8)...),
		prof("p2", "Bob", unitAt(0.75)...),
	}
	res := m.Match(sig(1, 0), population, []string{"Alice"})
	if res.Band != match.BandAmbiguous {
		t.Fatalf("Band=%q, want %q", res.Band, match.BandAmbiguous)
	}
	for _, c := range res.Candidates {
		want := c.ProfileID == "p1"
		if c.NameHintAgrees != want {
			t.Errorf("candidate %q NameHintAgrees=%v, want %v", c.ProfileID, c.NameHintAgrees, want)
		}
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := match.Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: %g, want 1", got)
	}
	if got := match.Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: %g, want 0", got)
	}
	if got := match.Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector: %g, want 0", got)
	}
}

// Package match compares session signatures against the persisted speaker
// profile population and classifies the result into a decision band.
//
// Similarity is cosine similarity between centroid embeddings, penalised by
// a normalised distance between scalar pitch/energy statistics to reduce
// false positives from embedding collisions. Banding follows two configured
// thresholds: at or above tAuto the top candidate is an automatic match
// (still reported to the caller, never silently merged); between tAmbiguous
// and tAuto the top K candidates go out for external confirmation; below
// tAmbiguous the signature matches nothing. An empty population always
// yields [BandNoMatch].
package match

import (
	"math"
	"sort"

	"github.com/tbruckner/voxatlas/internal/namehint"
	"github.com/tbruckner/voxatlas/internal/profile"
	"github.com/tbruckner/voxatlas/internal/signature"
)

// Band classifies a signature-to-population comparison.
type Band string

const (
	BandAutoMatch Band = "AUTO_MATCH"
	BandAmbiguous Band = "AMBIGUOUS"
	BandNoMatch   Band = "NO_MATCH"
)

// Candidate is one ranked profile match. Transient; never persisted.
type Candidate struct {
	ProfileID   string
	DisplayName string
	Similarity  float64

	// NameHintAgrees is set when the speaker's self-introduction hints
	// fuzzy-match this profile's display name. Advisory only.
	NameHintAgrees bool
}

// Result is the matcher's output for one session signature.
type Result struct {
	Band       Band
	Candidates []Candidate
}

const (
	defaultTAuto          = 0.85
	defaultTAmbiguous     = 0.70
	defaultTopK           = 3
	defaultFeaturePenalty = 0.15
)

// Matcher ranks signatures against profiles. Read-only after construction
// and safe for concurrent use.
type Matcher struct {
	tAuto          float64
	tAmbiguous     float64
	topK           int
	featurePenalty float64
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithThresholds sets the decision band thresholds. tAuto must exceed
// tAmbiguous; values outside (0, 1] are the caller's responsibility to
// validate (see config.Validate). Defaults: 0.85 / 0.70.
func WithThresholds(tAuto, tAmbiguous float64) Option {
	return func(m *Matcher) {
		m.tAuto = tAuto
		m.tAmbiguous = tAmbiguous
	}
}

// WithTopK sets how many candidates an ambiguous result carries. Default: 3.
func WithTopK(k int) Option {
	return func(m *Matcher) { m.topK = k }
}

// WithFeaturePenalty sets the weight of the scalar-feature distance penalty.
// Zero disables the penalty entirely. Default: 0.15.
func WithFeaturePenalty(w float64) Option {
	return func(m *Matcher) { m.featurePenalty = w }
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		tAuto:          defaultTAuto,
		tAmbiguous:     defaultTAmbiguous,
		topK:           defaultTopK,
		featurePenalty: defaultFeaturePenalty,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match ranks sig against population and classifies the outcome. nameHints
// may be nil; when present they only annotate candidates.
func (m *Matcher) Match(sig signature.Signature, population []profile.Profile, nameHints []string) Result {
	if len(population) == 0 {
		return Result{Band: BandNoMatch, Candidates: []Candidate{}}
	}

	candidates := make([]Candidate, 0, len(population))
	for _, p := range population {
		score := m.score(sig, p)
		candidates = append(candidates, Candidate{
			ProfileID:      p.ID,
			DisplayName:    p.DisplayName,
			Similarity:     score,
			NameHintAgrees: namehint.Agrees(nameHints, p.DisplayName),
		})
	}

	// Descending similarity; profile ID breaks exact ties so ranking is
	// reproducible across runs.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ProfileID < candidates[j].ProfileID
	})

	top := candidates[0].Similarity
	switch {
	case top >= m.tAuto:
		return Result{Band: BandAutoMatch, Candidates: candidates[:1]}
	case top >= m.tAmbiguous:
		k := m.topK
		if k > len(candidates) {
			k = len(candidates)
		}
		// Only candidates inside the ambiguous band are worth confirming.
		for k > 0 && candidates[k-1].Similarity < m.tAmbiguous {
			k--
		}
		return Result{Band: BandAmbiguous, Candidates: candidates[:k]}
	default:
		return Result{Band: BandNoMatch, Candidates: []Candidate{}}
	}
}

// score computes penalised cosine similarity between sig and p.
func (m *Matcher) score(sig signature.Signature, p profile.Profile) float64 {
	score := Cosine(sig.Centroid, p.Centroid)
	if m.featurePenalty > 0 {
		score -= m.featurePenalty * featureDistance(sig.Stats, p.FeatureStats)
	}
	return score
}

// featureDistance is a normalised distance over pitch and energy means,
// scaled by the pooled stdevs so speakers with wide natural variation are
// not penalised for it. Clamped to [0, 1].
func featureDistance(a, b signature.FeatureStats) float64 {
	pitch := scaledDiff(a.PitchMean, b.PitchMean, a.PitchStdev+b.PitchStdev)
	energy := scaledDiff(a.EnergyMean, b.EnergyMean, a.EnergyStdev+b.EnergyStdev)
	d := (pitch + energy) / 2
	if d > 1 {
		d = 1
	}
	return d
}

func scaledDiff(x, y, scale float64) float64 {
	const minScale = 1e-9
	if scale < minScale {
		scale = minScale
	}
	// One pooled stdev of separation scores 0.5; saturation at two stdevs.
	return math.Min(math.Abs(x-y)/(2*scale), 1)
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// compare over the shorter prefix; a zero vector yields 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

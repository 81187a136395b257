// Package signature pools per-turn feature vectors into one session-level
// acoustic signature per local speaker.
//
// Pooling is a duration-weighted mean: each contributing turn's voiced
// duration is its weight, so longer turns carry proportionally more
// influence and short noisy utterances cannot dominate. A local speaker
// whose every turn was rejected as too short yields no signature at all;
// callers surface that speaker as "insufficient data" instead of matching
// a vector made of nothing.
package signature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tbruckner/voxatlas/internal/align"
	"github.com/tbruckner/voxatlas/internal/feature"
)

// ErrNoSignature reports a local speaker with zero usable turns.
var ErrNoSignature = errors.New("signature: no usable turns for speaker")

// FeatureStats holds the scalar acoustic statistics of a signature or a
// persisted profile. All values are duration-weighted means of the
// contributing turns' statistics.
type FeatureStats struct {
	PitchMean        float64 `json:"pitch_mean"`
	PitchStdev       float64 `json:"pitch_stdev"`
	EnergyMean       float64 `json:"energy_mean"`
	EnergyStdev      float64 `json:"energy_stdev"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralRolloff  float64 `json:"spectral_rolloff"`
}

// SessionStats summarises a local speaker's conversational behaviour within
// one session.
type SessionStats struct {
	TurnCount       int     `json:"turn_count"`
	TotalDuration   float64 `json:"total_duration"`
	AvgTurnDuration float64 `json:"avg_turn_duration"`
	WordCount       int     `json:"word_count"`
	SpeakingRate    float64 `json:"speaking_rate"` // words per minute
}

// Signature is the session-level acoustic aggregate for one local speaker,
// the unit handed to the profile matcher.
type Signature struct {
	Label               string
	Centroid            []float32
	Stats               FeatureStats
	SessionStats        SessionStats
	TotalVoicedDuration float64
}

// Contribution pairs one aligned turn with its extracted feature vector.
type Contribution struct {
	Turn   align.Turn
	Vector feature.Vector
}

// Aggregate pools contributions for one local speaker label into a
// Signature. Returns [ErrNoSignature] (wrapped, naming the label) when
// contributions is empty.
func Aggregate(label string, contributions []Contribution) (Signature, error) {
	if len(contributions) == 0 {
		return Signature{}, fmt.Errorf("signature: label %q: %w", label, ErrNoSignature)
	}

	dim := len(contributions[0].Vector.Embedding)
	centroid := make([]float64, dim)
	var (
		stats       FeatureStats
		totalWeight float64
	)

	for _, c := range contributions {
		w := c.Vector.VoicedDuration
		if w <= 0 {
			continue
		}
		totalWeight += w
		for i, v := range c.Vector.Embedding {
			centroid[i] += float64(v) * w
		}
		stats.PitchMean += c.Vector.PitchMean * w
		stats.PitchStdev += c.Vector.PitchStdev * w
		stats.EnergyMean += c.Vector.EnergyMean * w
		stats.EnergyStdev += c.Vector.EnergyStdev * w
		stats.SpectralCentroid += c.Vector.SpectralCentroid * w
		stats.SpectralRolloff += c.Vector.SpectralRolloff * w
	}
	if totalWeight <= 0 {
		return Signature{}, fmt.Errorf("signature: label %q has zero voiced duration: %w", label, ErrNoSignature)
	}

	out := make([]float32, dim)
	for i, v := range centroid {
		out[i] = float32(v / totalWeight)
	}
	stats.PitchMean /= totalWeight
	stats.PitchStdev /= totalWeight
	stats.EnergyMean /= totalWeight
	stats.EnergyStdev /= totalWeight
	stats.SpectralCentroid /= totalWeight
	stats.SpectralRolloff /= totalWeight

	return Signature{
		Label:               label,
		Centroid:            out,
		Stats:               stats,
		SessionStats:        sessionStats(contributions),
		TotalVoicedDuration: totalWeight,
	}, nil
}

func sessionStats(contributions []Contribution) SessionStats {
	var s SessionStats
	for _, c := range contributions {
		s.TurnCount++
		s.TotalDuration += c.Turn.Duration()
		s.WordCount += len(strings.Fields(c.Turn.Text))
	}
	if s.TurnCount > 0 {
		s.AvgTurnDuration = s.TotalDuration / float64(s.TurnCount)
	}
	if s.TotalDuration > 0 {
		s.SpeakingRate = float64(s.WordCount) / (s.TotalDuration / 60)
	}
	return s
}

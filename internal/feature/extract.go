// Package feature computes per-turn acoustic feature vectors from raw audio.
//
// For a turn's time range the extractor frames the audio (25 ms frames,
// 10 ms hop), discards frames below an energy floor, and computes pitch
// statistics (autocorrelation), energy statistics (frame RMS), spectral
// centroid and rolloff, plus a fixed 32-dimension timbre embedding suitable
// for cosine comparison across sessions. All computation is deterministic:
// identical samples and range produce bit-identical output.
package feature

import (
	"errors"
	"fmt"

	"github.com/tbruckner/voxatlas/pkg/audio"
)

// EmbeddingDim is the fixed length of every timbre embedding: 24 mel-spaced
// band energies followed by 8 normalised scalar features.
const EmbeddingDim = melBands + 8

// ErrInsufficientAudio reports a time range whose voiced content is too
// short to yield stable pitch and spectral estimates. Such turns are
// excluded from aggregation rather than polluting the session signature.
var ErrInsufficientAudio = errors.New("feature: insufficient voiced audio")

// Vector is the acoustic feature vector for one aligned turn.
type Vector struct {
	PitchMean        float64 // Hz, over voiced frames with a detected pitch
	PitchStdev       float64
	EnergyMean       float64 // frame RMS over voiced frames
	EnergyStdev      float64
	SpectralCentroid float64 // Hz
	SpectralRolloff  float64 // Hz, 85% energy point

	// VoicedDuration is the summed length of voiced frames in seconds. It is
	// the weight this turn carries during signature aggregation.
	VoicedDuration float64

	// Embedding is the L2-normalised timbre embedding of length [EmbeddingDim].
	Embedding []float32
}

const (
	frameLength = 0.025 // seconds
	hopLength   = 0.010 // seconds

	defaultEnergyFloor = 0.01
	defaultMinVoiced   = 1.0 // seconds
)

// Extractor computes feature vectors. It is read-only after construction and
// safe for concurrent use.
type Extractor struct {
	energyFloor float64
	minVoiced   float64
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithEnergyFloor sets the frame RMS below which a frame counts as
// silence/noise and is excluded from all statistics. Default: 0.01.
func WithEnergyFloor(floor float64) Option {
	return func(e *Extractor) { e.energyFloor = floor }
}

// WithMinVoicedDuration sets the minimum voiced duration (seconds) a range
// must contain before extraction succeeds. Default: 1.0.
func WithMinVoicedDuration(seconds float64) Option {
	return func(e *Extractor) { e.minVoiced = seconds }
}

// New returns an Extractor with the supplied options applied.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		energyFloor: defaultEnergyFloor,
		minVoiced:   defaultMinVoiced,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract computes the feature vector for the samples of src in [start, end).
// Returns [ErrInsufficientAudio] (wrapped) when the range holds less voiced
// audio than the configured minimum.
func (e *Extractor) Extract(src audio.SampleSource, start, end float64) (Vector, error) {
	samples, err := src.Samples(start, end)
	if err != nil {
		return Vector{}, fmt.Errorf("feature: read samples [%g, %g): %w", start, end, err)
	}
	rate := src.SampleRate()

	frameLen := int(frameLength * float64(rate))
	hopLen := int(hopLength * float64(rate))
	if frameLen <= 0 || hopLen <= 0 {
		return Vector{}, fmt.Errorf("feature: sample rate %d too low for framing", rate)
	}

	var (
		voiced       [][]float32
		energies     []float64
		voicedLength int
	)
	for off := 0; off+frameLen <= len(samples); off += hopLen {
		frame := samples[off : off+frameLen]
		rms := frameRMS(frame)
		if rms < e.energyFloor {
			continue
		}
		voiced = append(voiced, frame)
		energies = append(energies, rms)
		voicedLength += hopLen
	}

	voicedDuration := float64(voicedLength) / float64(rate)
	if voicedDuration < e.minVoiced {
		return Vector{}, fmt.Errorf("feature: range [%g, %g) has %.2fs voiced audio, need %.2fs: %w",
			start, end, voicedDuration, e.minVoiced, ErrInsufficientAudio)
	}

	// Pitch over frames with a confident autocorrelation peak.
	var pitches []float64
	for _, frame := range voiced {
		if f0, ok := framePitch(frame, rate); ok {
			pitches = append(pitches, f0)
		}
	}
	pitchMean, pitchStd := meanStdev(pitches)
	energyMean, energyStd := meanStdev(energies)

	// Average power spectrum over voiced frames drives the spectral scalars
	// and the mel band layout of the embedding.
	spectrum := averageSpectrum(voiced, rate)
	centroid := spectralCentroid(spectrum, rate)
	rolloff := spectralRolloff(spectrum, rate, 0.85)
	bands := melBandEnergies(spectrum, rate)

	zcr := zeroCrossingRate(voiced)
	voicedRatio := voicedDuration / (end - start)
	if voicedRatio > 1 {
		voicedRatio = 1
	}

	return Vector{
		PitchMean:        pitchMean,
		PitchStdev:       pitchStd,
		EnergyMean:       energyMean,
		EnergyStdev:      energyStd,
		SpectralCentroid: centroid,
		SpectralRolloff:  rolloff,
		VoicedDuration:   voicedDuration,
		Embedding: buildEmbedding(bands, scalarFeatures{
			pitchMean:   pitchMean,
			pitchStdev:  pitchStd,
			energyMean:  energyMean,
			energyStdev: energyStd,
			centroid:    centroid,
			rolloff:     rolloff,
			voicedRatio: voicedRatio,
			zcr:         zcr,
			nyquist:     float64(rate) / 2,
		}),
	}, nil
}

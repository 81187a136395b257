// Package audio provides the sample-source abstraction consumed by the
// feature-extraction stage, plus PCM16 decoding helpers and a RIFF/WAVE
// reader for loading decoded recordings from disk.
//
// The engine treats a recording as a random-access provider of mono float32
// samples at a known sample rate, never as a stream. All time values are in
// seconds from the start of the recording.
package audio

import "fmt"

// SampleSource is the random-access audio contract the pipeline depends on.
// Implementations must be safe for concurrent use: feature extraction over
// independent turns may request overlapping ranges from multiple goroutines.
type SampleSource interface {
	// Samples returns the mono samples covering [start, end). Callers must
	// not mutate the returned slice. Ranges are clamped to the recording
	// bounds; a range entirely outside the recording yields an empty slice.
	Samples(start, end float64) ([]float32, error)

	// SampleRate returns the sample rate in Hz.
	SampleRate() int

	// Duration returns the total length of the recording in seconds.
	Duration() float64
}

// Buffer is an in-memory SampleSource backed by a mono float32 slice.
// The zero value is not usable; construct via [NewBuffer], [ReadWAV], or
// [LoadWAV].
type Buffer struct {
	samples []float32
	rate    int
}

// NewBuffer wraps mono samples at the given sample rate.
func NewBuffer(samples []float32, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}
	return &Buffer{samples: samples, rate: sampleRate}, nil
}

// Samples implements [SampleSource]. The returned slice aliases the buffer's
// backing array; callers must treat it as read-only.
func (b *Buffer) Samples(start, end float64) ([]float32, error) {
	if end < start {
		return nil, fmt.Errorf("audio: invalid range [%g, %g)", start, end)
	}
	lo := int(start * float64(b.rate))
	hi := int(end * float64(b.rate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(b.samples) {
		hi = len(b.samples)
	}
	if lo >= hi {
		return nil, nil
	}
	return b.samples[lo:hi], nil
}

// SampleRate implements [SampleSource].
func (b *Buffer) SampleRate() int { return b.rate }

// Duration implements [SampleSource].
func (b *Buffer) Duration() float64 {
	return float64(len(b.samples)) / float64(b.rate)
}

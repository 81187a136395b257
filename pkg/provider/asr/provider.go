// Package asr defines the Provider interface for speech-recognition backends.
//
// An ASR provider transcribes a complete, already-decoded recording into an
// ordered sequence of timestamped [Segment] values. The identity engine
// consumes those segments as-is: it assumes they are sorted by start time and
// non-overlapping, and validates both before alignment.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"

	"github.com/tbruckner/voxatlas/pkg/audio"
)

// Segment is one timestamped piece of recognised speech. Times are in
// seconds from the start of the recording, with End > Start.
type Segment struct {
	Start float64
	End   float64
	Text  string

	// Confidence is the provider's confidence in the transcription
	// (0.0–1.0). Zero when the provider does not report confidence.
	Confidence float64
}

// Duration returns the segment length in seconds, never negative.
func (s Segment) Duration() float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Provider is the abstraction over any batch speech-recognition backend.
type Provider interface {
	// Transcribe recognises the full recording and returns its segments
	// ordered by start time. Returns an error if recognition fails or ctx is
	// cancelled; partial results are not returned.
	Transcribe(ctx context.Context, src audio.SampleSource) ([]Segment, error)
}

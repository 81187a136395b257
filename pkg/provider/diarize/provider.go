// Package diarize defines the Provider interface for speaker-diarization
// backends.
//
// A diarization provider partitions a recording into [Turn] values, each
// attributed to one session-scoped speaker label. Labels are opaque and carry
// no meaning across recordings; resolving them to persistent identities is
// the job of the profile matcher, not the diarizer.
//
// Implementations must be safe for concurrent use.
package diarize

import (
	"context"

	"github.com/tbruckner/voxatlas/pkg/audio"
)

// Turn is a time interval attributed to one locally-labelled speaker.
// Times are in seconds from the start of the recording, with End > Start.
// Turns for distinct labels may interleave, but two turns carrying the same
// label must not overlap.
type Turn struct {
	Start float64
	End   float64

	// Label is the session-scoped speaker identifier (e.g., "S0").
	Label string
}

// Midpoint returns the temporal centre of the turn.
func (t Turn) Midpoint() float64 { return (t.Start + t.End) / 2 }

// Provider is the abstraction over any diarization backend.
type Provider interface {
	// Diarize partitions the recording and returns its turns ordered by
	// start time. Returns an error if diarization fails or ctx is cancelled.
	Diarize(ctx context.Context, src audio.SampleSource) ([]Turn, error)
}

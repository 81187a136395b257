// Package psycho defines the Scorer interface for psychometric text scoring.
//
// The identity engine neither computes nor interprets these scores: they are
// produced per aligned turn by an external collaborator and attached opaquely
// for downstream reporting.
package psycho

import "context"

// Score is an opaque set of named psychometric values for one piece of text.
// Keys and value ranges are scorer-specific.
type Score map[string]float64

// Scorer is the abstraction over any psychometric scoring backend.
// Implementations must be safe for concurrent use.
type Scorer interface {
	// Score evaluates text and returns its psychometric values. Returns an
	// error if scoring fails or ctx is cancelled.
	Score(ctx context.Context, text string) (Score, error)
}

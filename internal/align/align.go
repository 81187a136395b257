// Package align reconciles the two independently-timed segmentation streams
// of a recording, ASR transcript segments and diarization turns, into a
// single ordered timeline of speaker-labelled turns.
//
// Each transcript segment is assigned wholesale to the diarization turn with
// the greatest temporal overlap. Segments that overlap no turn at all keep
// their text under the reserved [LabelUnknown] label; text is never dropped.
// The whole process is a pure function of its two inputs: identical inputs
// always produce the identical output sequence, including tie-break choices.
package align

import (
	"errors"
	"fmt"
	"math"

	"github.com/tbruckner/voxatlas/pkg/provider/asr"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
)

// LabelUnknown is the reserved local speaker label assigned to transcript
// segments that overlap no diarization turn.
const LabelUnknown = "UNKNOWN"

// Turn is one aligned unit of the merged timeline: a transcript segment's
// text and timing carrying its resolved local speaker label.
type Turn struct {
	Start float64
	End   float64
	Text  string
	Label string
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 { return t.End - t.Start }

// ValidationError reports malformed input to [Align]. It aborts the run
// before any audio is touched.
type ValidationError struct {
	Stream string // "transcript" or "diarization"
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("align: invalid %s input at index %d: %s", e.Stream, e.Index, e.Reason)
}

// Align merges transcript segments and diarization turns into an ordered
// aligned-turn sequence covering every segment exactly once.
//
// Assignment rule: each segment goes to the turn with maximum temporal
// overlap. Ties prefer the turn whose midpoint is closest to the segment's
// midpoint, then the earlier-starting turn. Both input sequences must be
// sorted by start time; segments must not overlap each other, and turns
// sharing a label must not overlap each other. Malformed input fails fast
// with a [ValidationError].
func Align(segments []asr.Segment, turns []diarize.Turn) ([]Turn, error) {
	if err := validateSegments(segments); err != nil {
		return nil, err
	}
	if err := validateTurns(turns); err != nil {
		return nil, err
	}

	aligned := make([]Turn, 0, len(segments))
	for _, seg := range segments {
		aligned = append(aligned, Turn{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
			Label: resolveLabel(seg, turns),
		})
	}
	return aligned, nil
}

// resolveLabel picks the diarization turn owning seg by the max-overlap rule.
func resolveLabel(seg asr.Segment, turns []diarize.Turn) string {
	var (
		best        *diarize.Turn
		bestOverlap float64
	)
	segMid := (seg.Start + seg.End) / 2

	for i := range turns {
		t := &turns[i]
		ov := overlap(seg.Start, seg.End, t.Start, t.End)
		if ov <= 0 {
			continue
		}
		switch {
		case best == nil || ov > bestOverlap:
			best, bestOverlap = t, ov
		case ov == bestOverlap:
			// Equal overlap: closer midpoint wins; earlier start breaks the
			// remaining tie. Input order already guarantees best starts no
			// later than t, so only a strictly closer midpoint displaces it.
			if math.Abs(t.Midpoint()-segMid) < math.Abs(best.Midpoint()-segMid) {
				best, bestOverlap = t, ov
			}
		}
	}

	if best == nil {
		return LabelUnknown
	}
	return best.Label
}

// overlap returns the length of the intersection of [a0,a1) and [b0,b1).
func overlap(a0, a1, b0, b1 float64) float64 {
	lo := math.Max(a0, b0)
	hi := math.Min(a1, b1)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func validateSegments(segments []asr.Segment) error {
	for i, s := range segments {
		switch {
		case s.Start < 0:
			return &ValidationError{Stream: "transcript", Index: i, Reason: fmt.Sprintf("negative start %g", s.Start)}
		case s.End <= s.Start:
			return &ValidationError{Stream: "transcript", Index: i, Reason: fmt.Sprintf("end %g not after start %g", s.End, s.Start)}
		case i > 0 && s.Start < segments[i-1].Start:
			return &ValidationError{Stream: "transcript", Index: i, Reason: "segments not sorted by start"}
		case i > 0 && s.Start < segments[i-1].End:
			return &ValidationError{Stream: "transcript", Index: i, Reason: "segments overlap"}
		}
	}
	return nil
}

func validateTurns(turns []diarize.Turn) error {
	// Last end time seen per label, for same-label overlap detection.
	lastEnd := make(map[string]float64)
	for i, t := range turns {
		switch {
		case t.Label == "":
			return &ValidationError{Stream: "diarization", Index: i, Reason: "empty speaker label"}
		case t.Label == LabelUnknown:
			return &ValidationError{Stream: "diarization", Index: i, Reason: fmt.Sprintf("label %q is reserved", LabelUnknown)}
		case t.Start < 0:
			return &ValidationError{Stream: "diarization", Index: i, Reason: fmt.Sprintf("negative start %g", t.Start)}
		case t.End <= t.Start:
			return &ValidationError{Stream: "diarization", Index: i, Reason: fmt.Sprintf("end %g not after start %g", t.End, t.Start)}
		case i > 0 && t.Start < turns[i-1].Start:
			return &ValidationError{Stream: "diarization", Index: i, Reason: "turns not sorted by start"}
		}
		if prev, ok := lastEnd[t.Label]; ok && t.Start < prev {
			return &ValidationError{Stream: "diarization", Index: i, Reason: fmt.Sprintf("turns for label %q overlap", t.Label)}
		}
		lastEnd[t.Label] = t.End
	}
	return nil
}

// IsValidation reports whether err is (or wraps) a [ValidationError].
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

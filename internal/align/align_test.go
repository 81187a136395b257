package align_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tbruckner/voxatlas/internal/align"
	"github.com/tbruckner/voxatlas/pkg/provider/asr"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
)

func seg(start, end float64, text string) asr.Segment {
	return asr.Segment{Start: start, End: end, Text: text}
}

func turn(start, end float64, label string) diarize.Turn {
	return diarize.Turn{Start: start, End: end, Label: label}
}

func TestAlign_MaxOverlapAssignment(t *testing.T) {
	t.Parallel()

	segments := []asr.Segment{
		seg(0, 2, "hi"),
		seg(2, 5, "how are you"),
	}
	turns := []diarize.Turn{
		turn(0, 2.1, "A"),
		turn(2.1, 5, "A"),
	}

	aligned, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if len(aligned) != 2 {
		t.Fatalf("got %d aligned turns, want 2", len(aligned))
	}
	for i, a := range aligned {
		if a.Label != "A" {
			t.Errorf("aligned[%d].Label=%q, want %q", i, a.Label, "A")
		}
		if a.Text != segments[i].Text {
			t.Errorf("aligned[%d].Text=%q, want %q", i, a.Text, segments[i].Text)
		}
	}
}

func TestAlign_SegmentSpanningBoundaryIsNotSplit(t *testing.T) {
	t.Parallel()

	// The segment overlaps A for 1.5s and B for 0.5s: one aligned turn, A.
	segments := []asr.Segment{seg(1, 3, "spanning text")}
	turns := []diarize.Turn{
		turn(0, 2.5, "A"),
		turn(2.5, 5, "B"),
	}

	aligned, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if len(aligned) != 1 {
		t.Fatalf("got %d aligned turns, want 1 (no splitting)", len(aligned))
	}
	if aligned[0].Label != "A" {
		t.Errorf("Label=%q, want %q", aligned[0].Label, "A")
	}
}

func TestAlign_TieBreakMidpoint(t *testing.T) {
	t.Parallel()

	// Equal 1s overlap with both turns; B's midpoint (4) is nearer the
	// segment midpoint (4) than A's (2.5).
	segments := []asr.Segment{seg(3, 5, "tie")}
	turns := []diarize.Turn{
		turn(1, 4, "A"),
		turn(4, 4.999, "B"), // overlap 0.999 < 1, A keeps winning on overlap
	}
	aligned, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if aligned[0].Label != "A" {
		t.Errorf("Label=%q, want %q (larger overlap wins)", aligned[0].Label, "A")
	}

	// Now force an exact tie: both overlap 1s, B's midpoint is closer.
	turns = []diarize.Turn{
		turn(2, 4, "A"), // overlap [3,4) = 1, midpoint 3
		turn(4, 6, "B"), // overlap [4,5) = 1, midpoint 5
	}
	// Segment midpoint 4: |3-4| == |5-4|, still tied, so earlier start wins.
	aligned, err = align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if aligned[0].Label != "A" {
		t.Errorf("Label=%q, want %q (earlier start breaks the tie)", aligned[0].Label, "A")
	}
}

func TestAlign_TieBreakCloserMidpointWins(t *testing.T) {
	t.Parallel()

	segments := []asr.Segment{seg(3, 5, "tie")} // midpoint 4
	turns := []diarize.Turn{
		turn(2, 4, "A"),     // overlap 1, midpoint 3.0, distance 1.0
		turn(3.5, 4.5, "D"), // overlap 1, midpoint 4.0, distance 0
		turn(4, 4.9, "B"),   // overlap 0.9
		turn(4, 6, "C"),     // overlap 1, midpoint 5.0, distance 1.0
	}
	aligned, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if aligned[0].Label != "D" {
		t.Errorf("Label=%q, want %q (closest midpoint among equal overlaps)", aligned[0].Label, "D")
	}
}

func TestAlign_NoOverlapGetsUnknown(t *testing.T) {
	t.Parallel()

	segments := []asr.Segment{
		seg(0, 1, "orphaned"),
		seg(10, 12, "covered"),
	}
	turns := []diarize.Turn{turn(9, 13, "A")}

	aligned, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if aligned[0].Label != align.LabelUnknown {
		t.Errorf("orphaned segment Label=%q, want %q", aligned[0].Label, align.LabelUnknown)
	}
	if aligned[0].Text != "orphaned" {
		t.Errorf("orphaned text dropped: %q", aligned[0].Text)
	}
	if aligned[1].Label != "A" {
		t.Errorf("covered segment Label=%q, want %q", aligned[1].Label, "A")
	}
}

func TestAlign_CoverageAndDeterminism(t *testing.T) {
	t.Parallel()

	segments := []asr.Segment{
		seg(0, 1.5, "one"),
		seg(1.5, 3, "two"),
		seg(3.2, 4, "three"),
		seg(5, 9, "four"),
	}
	turns := []diarize.Turn{
		turn(0, 2, "A"),
		turn(2, 4, "B"),
		turn(4.5, 9, "A"),
	}

	first, err := align.Align(segments, turns)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if len(first) != len(segments) {
		t.Fatalf("coverage violated: %d aligned turns for %d segments", len(first), len(segments))
	}
	for i := range first {
		if first[i].Text != segments[i].Text {
			t.Errorf("aligned[%d] text=%q, want %q", i, first[i].Text, segments[i].Text)
		}
	}

	for run := 0; run < 10; run++ {
		again, err := align.Align(segments, turns)
		if err != nil {
			t.Fatalf("Align returned error on run %d: %v", run, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different alignment", run)
		}
	}
}

func TestAlign_ValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		segments []asr.Segment
		turns    []diarize.Turn
	}{
		{
			name:     "segment end before start",
			segments: []asr.Segment{seg(2, 1, "bad")},
		},
		{
			name:     "negative segment start",
			segments: []asr.Segment{seg(-1, 1, "bad")},
		},
		{
			name:     "unsorted segments",
			segments: []asr.Segment{seg(5, 6, "b"), seg(0, 1, "a")},
		},
		{
			name:     "overlapping segments",
			segments: []asr.Segment{seg(0, 2, "a"), seg(1, 3, "b")},
		},
		{
			name:     "turn end before start",
			segments: []asr.Segment{seg(0, 1, "a")},
			turns:    []diarize.Turn{turn(3, 2, "A")},
		},
		{
			name:     "same-label turns overlap",
			segments: []asr.Segment{seg(0, 1, "a")},
			turns:    []diarize.Turn{turn(0, 2, "A"), turn(1, 3, "A")},
		},
		{
			name:     "reserved label",
			segments: []asr.Segment{seg(0, 1, "a")},
			turns:    []diarize.Turn{turn(0, 1, align.LabelUnknown)},
		},
		{
			name:     "empty label",
			segments: []asr.Segment{seg(0, 1, "a")},
			turns:    []diarize.Turn{turn(0, 1, "")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := align.Align(tc.segments, tc.turns)
			if err == nil {
				t.Fatal("Align accepted malformed input")
			}
			var ve *align.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error %v is not a ValidationError", err)
			}
		})
	}
}

func TestAlign_InterleavedLabelsAllowed(t *testing.T) {
	t.Parallel()

	// Distinct labels may overlap each other (crosstalk).
	segments := []asr.Segment{seg(0, 1, "a")}
	turns := []diarize.Turn{
		turn(0, 2, "A"),
		turn(1, 3, "B"),
	}
	if _, err := align.Align(segments, turns); err != nil {
		t.Fatalf("Align rejected interleaved distinct labels: %v", err)
	}
}

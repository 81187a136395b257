// Package energy implements a lightweight, fully deterministic diarizer
// based on short-time energy.
//
// It is not a replacement for a real diarization model: it exists so that the
// pipeline can run offline without heavyweight dependencies, producing a
// stable two-way speaker split from energy levels alone. Windows whose RMS
// falls below the silence floor separate turns; contiguous speech windows are
// grouped into a turn and labelled by comparing the turn's mean energy
// against the median energy of all turns.
package energy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
)

const (
	defaultWindow       = 0.5  // seconds per analysis window
	defaultSilenceFloor = 0.01 // RMS below this is treated as silence
	defaultMinTurn      = 0.5  // seconds; shorter speech runs are discarded
)

var _ diarize.Provider = (*Diarizer)(nil)

// Diarizer segments a recording into turns by energy. The zero value is not
// usable; construct via [New].
type Diarizer struct {
	window       float64
	silenceFloor float64
	minTurn      float64
}

// Option configures a [Diarizer].
type Option func(*Diarizer)

// WithSilenceFloor sets the RMS level below which a window counts as silence.
// Default: 0.01.
func WithSilenceFloor(floor float64) Option {
	return func(d *Diarizer) { d.silenceFloor = floor }
}

// WithWindow sets the analysis window length in seconds. Default: 0.5.
func WithWindow(seconds float64) Option {
	return func(d *Diarizer) { d.window = seconds }
}

// New returns a Diarizer with the supplied options applied.
func New(opts ...Option) *Diarizer {
	d := &Diarizer{
		window:       defaultWindow,
		silenceFloor: defaultSilenceFloor,
		minTurn:      defaultMinTurn,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Diarize implements [diarize.Provider].
func (d *Diarizer) Diarize(ctx context.Context, src audio.SampleSource) ([]diarize.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples, err := src.Samples(0, src.Duration())
	if err != nil {
		return nil, fmt.Errorf("energy diarizer: read samples: %w", err)
	}

	win := int(d.window * float64(src.SampleRate()))
	if win <= 0 {
		return nil, fmt.Errorf("energy diarizer: window %gs too small for rate %d", d.window, src.SampleRate())
	}

	type run struct {
		start, end float64
		energy     float64
	}
	var (
		runs    []run
		current *run
		weight  float64
	)
	for off := 0; off < len(samples); off += win {
		hi := off + win
		if hi > len(samples) {
			hi = len(samples)
		}
		rms := rms(samples[off:hi])
		t0 := float64(off) / float64(src.SampleRate())
		t1 := float64(hi) / float64(src.SampleRate())

		if rms < d.silenceFloor {
			current = nil
			continue
		}
		if current == nil {
			runs = append(runs, run{start: t0, end: t1, energy: rms})
			current = &runs[len(runs)-1]
			weight = 1
		} else {
			current.end = t1
			weight++
			current.energy += (rms - current.energy) / weight
		}
	}

	// Drop runs too short to be a speaking turn.
	kept := runs[:0]
	for _, r := range runs {
		if r.end-r.start >= d.minTurn {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	// Two-way label split around the median turn energy. With a single turn
	// everything lands on S0.
	energies := make([]float64, len(kept))
	for i, r := range kept {
		energies[i] = r.energy
	}
	sort.Float64s(energies)
	median := energies[len(energies)/2]

	turns := make([]diarize.Turn, 0, len(kept))
	for _, r := range kept {
		label := "S0"
		if r.energy < median {
			label = "S1"
		}
		turns = append(turns, diarize.Turn{Start: r.start, End: r.end, Label: label})
	}
	return turns, nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Package pipeline orchestrates a full identity-resolution run over one
// recording: alignment, extraction, aggregation, and matching, followed by
// confirmed decisions applied through the profile merger.
//
// A run is sequential per recording; feature extraction over independent
// turns fans out on a bounded worker pool since each vector is keyed to its
// turn and completion order is irrelevant. Multiple recordings may be
// processed concurrently by independent Pipeline calls; they share nothing
// until the merge stage, where the profile store's optimistic concurrency
// serialises per-profile updates.
//
// Interactive confirmation is modelled as an explicit suspension point: the
// aligner-through-matcher stages are pure or ephemeral, so [Pipeline.Process]
// returns a [Run] holding immutable signatures and match results, and the
// caller feeds decisions back through [Pipeline.Resolve] whenever the
// confirming actor answers. Aborting before Resolve leaves no persisted
// side effect.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/tbruckner/voxatlas/internal/align"
	"github.com/tbruckner/voxatlas/internal/feature"
	"github.com/tbruckner/voxatlas/internal/match"
	"github.com/tbruckner/voxatlas/internal/namehint"
	"github.com/tbruckner/voxatlas/internal/observe"
	"github.com/tbruckner/voxatlas/internal/profile"
	"github.com/tbruckner/voxatlas/internal/signature"
	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/asr"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
	"github.com/tbruckner/voxatlas/pkg/provider/psycho"
)

// Status is the per-speaker outcome of a run.
type Status string

const (
	// StatusPending means the speaker awaits a confirmation decision.
	StatusPending Status = "pending"

	// StatusMatched means a confirmed merge into an existing profile.
	StatusMatched Status = "matched"

	// StatusNewProfile means a confirmed non-match created a new profile.
	StatusNewProfile Status = "new_profile"

	// StatusUnmatched means no profile mutation happened; Reason says why.
	StatusUnmatched Status = "unmatched"
)

// SpeakerStatus is the resolution state of one local speaker.
type SpeakerStatus struct {
	Label       string
	Status      Status
	Reason      string // set when Status is unmatched
	ProfileID   string // set when Status is matched or new_profile
	DisplayName string
}

// TurnRecord is one aligned turn enriched for reporting: the resolved
// display name (once known) and the opaque psychometric score.
type TurnRecord struct {
	align.Turn
	SpeakerName   string
	Psychometrics psycho.Score
}

// PendingDecision holds everything the confirming actor needs for one local
// speaker. The signature and match result are immutable once produced.
type PendingDecision struct {
	Label     string
	Signature signature.Signature
	Match     match.Result
	NameHints []string
}

// Run is the state of one recording's pipeline run between Process and the
// final Resolve. Not safe for concurrent mutation; resolve speakers from a
// single goroutine.
type Run struct {
	SessionID string
	Turns     []TurnRecord
	Pending   []PendingDecision
	Statuses  map[string]*SpeakerStatus
}

// Action is the confirming actor's decision for one local speaker.
type Action string

const (
	// ActionConfirm merges the signature into Decision.ProfileID.
	ActionConfirm Action = "confirm"

	// ActionCreateNew creates a profile from the signature.
	ActionCreateNew Action = "create_new"

	// ActionDefer leaves the speaker unmatched with no profile mutation.
	ActionDefer Action = "defer"
)

// Decision is the confirming actor's answer for one pending speaker.
type Decision struct {
	Action      Action
	ProfileID   string // required for ActionConfirm
	DisplayName string // optional for ActionCreateNew
}

// Pipeline wires the stages together. Construct via [New]; safe for
// concurrent Process calls.
type Pipeline struct {
	asr       asr.Provider
	diarizer  diarize.Provider
	extractor *feature.Extractor
	matcher   *match.Matcher
	store     profile.Store
	merger    *profile.Merger

	scorer  psycho.Scorer
	metrics *observe.Metrics
	workers int
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithScorer attaches a psychometric scorer applied per aligned turn.
// Scoring failures are logged and leave the turn unscored; they never abort
// the run.
func WithScorer(s psycho.Scorer) Option {
	return func(p *Pipeline) { p.scorer = s }
}

// WithWorkers bounds the feature-extraction worker pool. Default: 4.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithMetrics overrides the metrics instance. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New returns a Pipeline over the given collaborators.
func New(
	asrProvider asr.Provider,
	diarizer diarize.Provider,
	extractor *feature.Extractor,
	matcher *match.Matcher,
	store profile.Store,
	merger *profile.Merger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		asr:       asrProvider,
		diarizer:  diarizer,
		extractor: extractor,
		matcher:   matcher,
		store:     store,
		merger:    merger,
		workers:   4,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs alignment, extraction, aggregation, and matching for one
// recording and returns the suspended Run. Nothing is persisted; apply
// decisions via [Pipeline.Resolve].
//
// Recording-level failures (invalid input streams, provider errors, an
// unreachable store) abort with an error. Per-turn and per-speaker failures
// are folded into statuses and never abort other speakers.
func (p *Pipeline) Process(ctx context.Context, src audio.SampleSource, sessionID string) (*Run, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.Process")
	defer span.End()
	log := observe.Logger(ctx).With("session_id", sessionID)

	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)

	segments, turns, err := p.segment(ctx, src)
	if err != nil {
		return nil, err
	}

	aligned, err := align.Align(segments, turns)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log.Info("aligned transcript", "segments", len(segments), "diarization_turns", len(turns), "aligned_turns", len(aligned))

	records := p.annotate(ctx, aligned)
	contributions := p.extract(ctx, src, aligned)

	run := &Run{
		SessionID: sessionID,
		Turns:     records,
		Statuses:  make(map[string]*SpeakerStatus),
	}
	if err := p.matchSpeakers(ctx, run, aligned, contributions); err != nil {
		return nil, err
	}
	return run, nil
}

// segment obtains the two input streams concurrently; they are independent
// collaborators reading the same recording.
func (p *Pipeline) segment(ctx context.Context, src audio.SampleSource) ([]asr.Segment, []diarize.Turn, error) {
	var (
		segments []asr.Segment
		turns    []diarize.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var err error
		segments, err = p.asr.Transcribe(gctx, src)
		p.metrics.ASRDuration.Record(gctx, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("pipeline: transcribe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		turns, err = p.diarizer.Diarize(gctx, src)
		p.metrics.DiarizeDuration.Record(gctx, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("pipeline: diarize: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return segments, turns, nil
}

// annotate builds turn records and attaches psychometric scores when a
// scorer is configured.
func (p *Pipeline) annotate(ctx context.Context, aligned []align.Turn) []TurnRecord {
	records := make([]TurnRecord, len(aligned))
	for i, t := range aligned {
		records[i] = TurnRecord{Turn: t}
		p.metrics.TurnsAligned.Add(ctx, 1, metric.WithAttributes(attribute.String("label", t.Label)))
		if p.scorer == nil {
			continue
		}
		score, err := p.scorer.Score(ctx, t.Text)
		if err != nil {
			observe.Logger(ctx).Warn("psychometric scoring failed", "turn_start", t.Start, "err", err)
			continue
		}
		records[i].Psychometrics = score
	}
	return records
}

// extract fans feature extraction out over a bounded worker pool. Turns
// under the UNKNOWN label carry text with no attributable voice and are
// skipped; turns with insufficient voiced audio are logged and dropped from
// aggregation. Neither aborts the run.
func (p *Pipeline) extract(ctx context.Context, src audio.SampleSource, aligned []align.Turn) map[string][]signature.Contribution {
	vectors := make([]*feature.Vector, len(aligned))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, t := range aligned {
		if t.Label == align.LabelUnknown {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			v, err := p.extractor.Extract(src, t.Start, t.End)
			p.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds())
			if err != nil {
				if errors.Is(err, feature.ErrInsufficientAudio) {
					p.metrics.TurnsRejected.Add(ctx, 1)
					observe.Logger(ctx).Debug("turn rejected", "label", t.Label, "start", t.Start, "err", err)
				} else {
					observe.Logger(ctx).Warn("feature extraction failed", "label", t.Label, "start", t.Start, "err", err)
				}
				return nil
			}
			vectors[i] = &v
			return nil
		})
	}
	// Workers never return errors: per-turn failures are logged and skipped.
	_ = g.Wait()

	contributions := make(map[string][]signature.Contribution)
	for i, t := range aligned {
		if vectors[i] == nil {
			continue
		}
		contributions[t.Label] = append(contributions[t.Label], signature.Contribution{
			Turn:   t,
			Vector: *vectors[i],
		})
	}
	return contributions
}

// matchSpeakers aggregates signatures and matches them against a single
// population snapshot, populating run.Pending and run.Statuses.
func (p *Pipeline) matchSpeakers(ctx context.Context, run *Run, aligned []align.Turn, contributions map[string][]signature.Contribution) error {
	population, err := p.store.List(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: list profiles: %w", err)
	}

	for _, label := range speakerLabels(aligned) {
		sig, err := signature.Aggregate(label, contributions[label])
		if err != nil {
			run.Statuses[label] = &SpeakerStatus{
				Label:  label,
				Status: StatusUnmatched,
				Reason: "insufficient-data",
			}
			observe.Logger(ctx).Info("speaker has no usable audio", "label", label)
			continue
		}

		hints := namehint.Extract(textsFor(aligned, label))

		start := time.Now()
		result := p.matcher.Match(sig, population, hints)
		p.metrics.MatchDuration.Record(ctx, time.Since(start).Seconds())
		p.metrics.MatchDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("band", string(result.Band))))

		run.Pending = append(run.Pending, PendingDecision{
			Label:     label,
			Signature: sig,
			Match:     result,
			NameHints: hints,
		})
		run.Statuses[label] = &SpeakerStatus{Label: label, Status: StatusPending}
		observe.Logger(ctx).Info("matched speaker signature",
			"label", label,
			"band", result.Band,
			"candidates", len(result.Candidates),
			"voiced_duration", sig.TotalVoicedDuration,
		)
	}
	return nil
}

// Resolve applies the confirming actor's decision for one pending speaker.
// The returned status is also recorded on the run. A merge that exhausts its
// conflict retries or targets a vanished profile fails only this speaker:
// the error is returned, the status becomes unmatched, and every other
// speaker is unaffected.
func (p *Pipeline) Resolve(ctx context.Context, run *Run, label string, dec Decision) (*SpeakerStatus, error) {
	idx := -1
	for i, pd := range run.Pending {
		if pd.Label == label {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("pipeline: no pending decision for label %q", label)
	}
	pending := run.Pending[idx]
	status := run.Statuses[label]

	switch dec.Action {
	case ActionDefer:
		status.Status = StatusUnmatched
		status.Reason = "deferred"

	case ActionCreateNew:
		start := time.Now()
		created, err := p.merger.CreateNew(ctx, pending.Signature, dec.DisplayName, run.SessionID)
		p.metrics.MergeDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			status.Status = StatusUnmatched
			status.Reason = "store-error"
			return status, fmt.Errorf("pipeline: resolve %q: %w", label, err)
		}
		p.metrics.ProfilesCreated.Add(ctx, 1)
		status.Status = StatusNewProfile
		status.ProfileID = created.ID
		status.DisplayName = created.DisplayName

	case ActionConfirm:
		if dec.ProfileID == "" {
			return nil, fmt.Errorf("pipeline: resolve %q: confirm requires a profile id", label)
		}
		start := time.Now()
		merged, err := p.merger.Merge(ctx, dec.ProfileID, pending.Signature, run.SessionID)
		p.metrics.MergeDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, profile.ErrVersionConflict) {
				p.metrics.MergeConflicts.Add(ctx, 1)
				status.Reason = "conflict"
			} else {
				status.Reason = "store-error"
			}
			status.Status = StatusUnmatched
			return status, fmt.Errorf("pipeline: resolve %q: %w", label, err)
		}
		p.metrics.ProfileMerges.Add(ctx, 1)
		status.Status = StatusMatched
		status.ProfileID = merged.ID
		status.DisplayName = merged.DisplayName

	default:
		return nil, fmt.Errorf("pipeline: resolve %q: unknown action %q", label, dec.Action)
	}

	run.Pending = append(run.Pending[:idx], run.Pending[idx+1:]...)
	if status.DisplayName != "" {
		for i := range run.Turns {
			if run.Turns[i].Label == label {
				run.Turns[i].SpeakerName = status.DisplayName
			}
		}
	}
	return status, nil
}

// speakerLabels returns the distinct non-UNKNOWN labels in first-appearance
// order, then sorted for deterministic processing.
func speakerLabels(aligned []align.Turn) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, t := range aligned {
		if t.Label == align.LabelUnknown || seen[t.Label] {
			continue
		}
		seen[t.Label] = true
		labels = append(labels, t.Label)
	}
	sort.Strings(labels)
	return labels
}

func textsFor(aligned []align.Turn, label string) []string {
	var texts []string
	for _, t := range aligned {
		if t.Label == label {
			texts = append(texts, t.Text)
		}
	}
	return texts
}

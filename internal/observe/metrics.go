// Package observe provides application-wide observability primitives for
// voxatlas: OpenTelemetry metrics, tracing helpers, and trace-correlated
// structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxatlas metrics.
const meterName = "github.com/tbruckner/voxatlas"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ASRDuration tracks speech-recognition latency per recording.
	ASRDuration metric.Float64Histogram

	// DiarizeDuration tracks diarization latency per recording.
	DiarizeDuration metric.Float64Histogram

	// ExtractDuration tracks feature-extraction latency per turn.
	ExtractDuration metric.Float64Histogram

	// MatchDuration tracks profile-matching latency per signature.
	MatchDuration metric.Float64Histogram

	// MergeDuration tracks profile-merge latency per confirmed decision.
	MergeDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsAligned counts aligned turns. Use with attribute:
	//   attribute.String("label", ...)
	TurnsAligned metric.Int64Counter

	// TurnsRejected counts turns excluded for insufficient voiced audio.
	TurnsRejected metric.Int64Counter

	// MatchDecisions counts match results. Use with attribute:
	//   attribute.String("band", ...)
	MatchDecisions metric.Int64Counter

	// ProfilesCreated counts new profiles from confirmed non-matches.
	ProfilesCreated metric.Int64Counter

	// ProfileMerges counts successful merges into existing profiles.
	ProfileMerges metric.Int64Counter

	// MergeConflicts counts optimistic-concurrency conflicts during merge,
	// including ones later resolved by retry.
	MergeConflicts metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of pipeline runs in flight.
	ActiveRuns metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// batch audio processing stages.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.ASRDuration, "voxatlas.asr.duration", "Latency of speech recognition per recording."},
		{&met.DiarizeDuration, "voxatlas.diarize.duration", "Latency of diarization per recording."},
		{&met.ExtractDuration, "voxatlas.extract.duration", "Latency of feature extraction per turn."},
		{&met.MatchDuration, "voxatlas.match.duration", "Latency of profile matching per signature."},
		{&met.MergeDuration, "voxatlas.merge.duration", "Latency of profile merge per confirmed decision."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.TurnsAligned, "voxatlas.turns.aligned", "Number of aligned turns produced."},
		{&met.TurnsRejected, "voxatlas.turns.rejected", "Number of turns rejected for insufficient voiced audio."},
		{&met.MatchDecisions, "voxatlas.match.decisions", "Number of match decisions by band."},
		{&met.ProfilesCreated, "voxatlas.profiles.created", "Number of new speaker profiles created."},
		{&met.ProfileMerges, "voxatlas.profiles.merged", "Number of successful signature merges."},
		{&met.MergeConflicts, "voxatlas.merge.conflicts", "Number of optimistic-concurrency conflicts during merge."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveRuns, err = m.Int64UpDownCounter("voxatlas.runs.active",
		metric.WithDescription("Number of pipeline runs in flight."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the lazily-initialised package-level Metrics bound
// to the global meter provider. Instrument creation errors are impossible
// with valid names, so they are ignored here; tests use [NewMetrics].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}

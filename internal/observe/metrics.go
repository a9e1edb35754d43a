// Package observe provides observability for the assistant pipeline:
// OpenTelemetry metrics with a Prometheus scrape bridge, lightweight tracing
// helpers, and HTTP middleware for the metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) exists for
// convenience; tests should build their own via [NewMetrics] with a private
// meter provider to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all assistant metrics.
const meterName = "github.com/auricvoice/auric"

// latencyBuckets are histogram boundaries (seconds) tuned for the voice
// pipeline: matching is milliseconds, offline transcription can take many
// seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Metrics holds the OTel instruments for the speech-to-action pipeline. All
// instruments are safe for concurrent use.
type Metrics struct {
	// MatchDuration tracks trigger-matching latency per utterance.
	MatchDuration metric.Float64Histogram

	// TranscribeDuration tracks offline transcription latency per capture.
	TranscribeDuration metric.Float64Histogram

	// SynthesizeDuration tracks speech synthesis latency per reply.
	SynthesizeDuration metric.Float64Histogram

	// DispatchDuration tracks handler execution latency. Attributes:
	// method, status.
	DispatchDuration metric.Float64Histogram

	// Utterances counts recognized utterances by outcome. Attribute:
	// outcome ∈ {matched, unmatched, filler, suppressed}.
	Utterances metric.Int64Counter

	// Captures counts finished recording sessions. Attribute:
	// result ∈ {finalized, cut, silence}.
	Captures metric.Int64Counter

	// ProviderErrors counts backend failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActiveCaptures tracks recording sessions currently open.
	ActiveCaptures metric.Int64UpDownCounter

	// HTTPRequestDuration tracks metrics-endpoint request latency.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates every instrument on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.MatchDuration, err = m.Float64Histogram("auric.match.duration",
		metric.WithDescription("Latency of trigger matching per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("auric.transcribe.duration",
		metric.WithDescription("Latency of offline transcription per capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("auric.synthesize.duration",
		metric.WithDescription("Latency of speech synthesis per reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("auric.dispatch.duration",
		metric.WithDescription("Latency of action handler execution by method and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Utterances, err = m.Int64Counter("auric.utterances",
		metric.WithDescription("Recognized utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Captures, err = m.Int64Counter("auric.captures",
		metric.WithDescription("Finished recording sessions by result."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("auric.provider.errors",
		metric.WithDescription("Backend failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptures, err = m.Int64UpDownCounter("auric.active_captures",
		metric.WithDescription("Recording sessions currently open."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("auric.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUtterance increments the utterance counter for one outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCapture increments the capture counter for one result.
func (m *Metrics) RecordCapture(ctx context.Context, result string) {
	m.Captures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
}

// RecordDispatch records one handler execution.
func (m *Metrics) RecordDispatch(ctx context.Context, method, status string, seconds float64) {
	m.DispatchDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		))
}

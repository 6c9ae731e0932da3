// Package observe provides application-wide observability primitives for
// meetscribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all meetscribe metrics.
const meterName = "github.com/MrWong99/meetscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture pipeline ---

	// PCMWindows counts encoded windows relayed to STT. Use with attribute:
	//   attribute.String("format", ...)
	PCMWindows metric.Int64Counter

	// PCMSamples counts samples received from capture clients.
	PCMSamples metric.Int64Counter

	// RelayDuration tracks how long a single SendAudio call to the STT
	// session takes.
	RelayDuration metric.Float64Histogram

	// Transcripts counts transcripts delivered to clients. Use with attribute:
	//   attribute.Bool("final", ...)
	Transcripts metric.Int64Counter

	// Corrections counts keyword corrections applied to final transcripts.
	Corrections metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-window relay calls, which normally complete in well under a window
// duration (256 ms at 16 kHz).
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture pipeline.
	if met.PCMWindows, err = m.Int64Counter("meetscribe.pcm.windows",
		metric.WithDescription("Total encoded PCM windows relayed to STT."),
	); err != nil {
		return nil, err
	}
	if met.PCMSamples, err = m.Int64Counter("meetscribe.pcm.samples",
		metric.WithDescription("Total audio samples received from capture clients."),
	); err != nil {
		return nil, err
	}
	if met.RelayDuration, err = m.Float64Histogram("meetscribe.relay.duration",
		metric.WithDescription("Latency of forwarding one window to the STT session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("meetscribe.transcripts",
		metric.WithDescription("Total transcripts delivered to capture clients."),
	); err != nil {
		return nil, err
	}

	if met.Corrections, err = m.Int64Counter("meetscribe.transcript.corrections",
		metric.WithDescription("Spans of final transcripts respelled to a keyword."),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderRequests, err = m.Int64Counter("meetscribe.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("meetscribe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("meetscribe.active_sessions",
		metric.WithDescription("Number of open capture sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("meetscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordWindow records one relayed window of the given wire format together
// with the time the STT session took to accept it.
func (m *Metrics) RecordWindow(ctx context.Context, format string, seconds float64) {
	m.PCMWindows.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
	m.RelayDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("format", format)))
}

// RecordSamples adds n received samples.
func (m *Metrics) RecordSamples(ctx context.Context, n int) {
	m.PCMSamples.Add(ctx, int64(n))
}

// RecordTranscript counts one delivered transcript.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
}

// RecordCorrections adds n keyword corrections.
func (m *Metrics) RecordCorrections(ctx context.Context, n int) {
	m.Corrections.Add(ctx, int64(n))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

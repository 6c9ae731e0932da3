package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every span meetscribe starts.
const tracerName = "github.com/MrWong99/meetscribe"

// Span names shared by the packages that trace capture work.
const (
	SpanCaptureSession = "capture.session"
	SpanSTTStart       = "capture.stt_start"
)

// Attribute keys attached to capture spans.
const (
	AttrMeetingID  = attribute.Key("meetscribe.meeting.id")
	AttrFormat     = attribute.Key("meetscribe.capture.format")
	AttrSampleRate = attribute.Key("meetscribe.capture.sample_rate")
	AttrWindows    = attribute.Key("meetscribe.capture.windows")
)

// Tracer returns the meetscribe tracer from the global provider, so spans
// follow whatever [InitProvider] installed.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name under ctx. End the span when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the hex trace ID of the span in ctx, or "" without one.
// It is echoed to clients as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

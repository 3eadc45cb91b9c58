package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the tracer.
const tracerName = "github.com/MrWong99/jurubahasa"

// Span attribute keys shared by translation spans.
const (
	AttrIntent   = attribute.Key("translate.intent")
	AttrSource   = attribute.Key("translate.source")
	AttrTarget   = attribute.Key("translate.target")
	AttrChars    = attribute.Key("translate.chars")
	AttrProvider = attribute.Key("translate.provider")
)

// Tracer returns the package-level [trace.Tracer] from the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTranslateSpan starts the span around one translation call. The span
// is named "translate.<intent>".
func StartTranslateSpan(ctx context.Context, intent, source, target string, chars int) (context.Context, trace.Span) {
	return StartSpan(ctx, "translate."+intent,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrIntent.String(intent),
			AttrSource.String(source),
			AttrTarget.String(target),
			AttrChars.Int(chars),
		),
	)
}

// EndSpan ends span, recording err as the span status unless it matches one
// of the expected errors.
func EndSpan(span trace.Span, err error, expected ...error) {
	defer span.End()
	if err == nil {
		return
	}
	for _, e := range expected {
		if errors.Is(err, e) {
			return
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID extracts the trace ID from the span context in ctx, or ""
// when there is none. The HTTP middleware echoes it in X-Correlation-ID and
// session logs carry it so a final card can be traced back to its call.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with trace_id and span_id from
// ctx. Without an active span it is [slog.Default] unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

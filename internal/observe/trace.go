package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/brainball"

// Span names.
const (
	SpanResolve    = "resolve.word"
	SpanTier       = "resolve.tier"
	SpanImageFetch = "imagecache.fetch"
)

// Tracer returns the brainball tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartResolveSpan starts the span covering one word resolution.
func StartResolveSpan(ctx context.Context, word string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanResolve, trace.WithAttributes(attribute.String("word", word)))
}

// EndResolveSpan records which tier answered and ends span.
func EndResolveSpan(span trace.Span, source, animal string, confidence float64) {
	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("animal", animal),
		attribute.Float64("confidence", confidence),
	)
	span.End()
}

// StartTierSpan starts a child span for one tier of the chain, e.g. "remote"
// or "local".
func StartTierSpan(ctx context.Context, tier string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTier, trace.WithAttributes(attribute.String("tier", tier)))
}

// EndTierSpan records the tier outcome and ends span. A non-nil err marks the
// span as failed.
func EndTierSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartImageFetchSpan starts the span around a sprite fetch for key.
func StartImageFetchSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanImageFetch, trace.WithAttributes(attribute.String("animal", key)))
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns slog.Default enriched with trace_id and span_id when ctx
// carries an active span.
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

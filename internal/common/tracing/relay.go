package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const relayTracerName = "redelivery-relay"

func relayTracer() trace.Tracer {
	return Tracer(relayTracerName)
}

// TraceRun starts the span covering one relay run.
// Caller must call span.End() when the sink is closed.
func TraceRun(ctx context.Context, runID, transport string) (context.Context, trace.Span) {
	ctx, span := relayTracer().Start(ctx, "relay.run",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("transport", transport),
	)
	return ctx, span
}

// TraceRunResult records the terminal state of a run on its span.
func TraceRunResult(span trace.Span, state string, events int, err error) {
	span.SetAttributes(
		attribute.String("state", state),
		attribute.Int("events", events),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceProviderRequest starts a span for the outbound automation call.
func TraceProviderRequest(ctx context.Context, url, mode string) (context.Context, trace.Span) {
	ctx, span := relayTracer().Start(ctx, "provider.run",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.method", "POST"),
		attribute.String("http.url", url),
		attribute.String("provider.mode", mode),
	)
	return ctx, span
}

// TraceProviderResponse records response attributes on the span.
func TraceProviderResponse(span trace.Span, statusCode int, err error) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceUpstreamEvent adds a span event for a received provider event.
func TraceUpstreamEvent(ctx context.Context, eventType string) {
	trace.SpanFromContext(ctx).AddEvent("provider.event",
		trace.WithAttributes(attribute.String("event_type", eventType)),
	)
}

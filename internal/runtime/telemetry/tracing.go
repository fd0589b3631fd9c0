package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for every span.
const TracerName = "uskit"

// Tracer returns the global tracer unless t is set.
func Tracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer(TracerName)
}

// StartSend opens a producer span around an outbound message.
func StartSend(ctx context.Context, t trace.Tracer, messageType string) (context.Context, trace.Span) {
	return Tracer(t).Start(ctx, "send "+messageType,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("uskit.message_type", messageType)),
	)
}

// EndSend records the outcome of a send and ends the span.
func EndSend(span trace.Span, messageID string, err error) {
	if messageID != "" {
		span.SetAttributes(attribute.String("uskit.message_id", messageID))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

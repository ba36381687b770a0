package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "warden"

// StartUpdateSpan creates a span for an update pipeline stage.
func StartUpdateSpan(ctx context.Context, operation, instance, patchline string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs,
		attribute.String("update.instance", instance),
		attribute.String("update.patchline", patchline),
	)
	return tracer.Start(ctx, "update."+operation, trace.WithAttributes(attrs...))
}

// StartSupervisorSpan creates a span for a supervisor operation.
func StartSupervisorSpan(ctx context.Context, operation, instance string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs, attribute.String("supervisor.instance", instance))
	return tracer.Start(ctx, "supervisor."+operation, trace.WithAttributes(attrs...))
}

// StartFleetSpan creates a span for a fleet-wide operation.
func StartFleetSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, "fleet."+operation, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and marks it failed.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.description", description),
	))
	span.SetStatus(codes.Error, description)
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

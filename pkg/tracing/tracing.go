// Package tracing wraps the process-wide OpenTelemetry tracer. Until Setup
// installs one, spans are no-ops and the trace accessors return "".
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// activeSpan returns the recording span in ctx, or nil.
func activeSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// w3c renders the W3C trace context headers for the span in ctx.
func w3c(ctx context.Context) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	if activeSpan(ctx) != nil {
		propagation.TraceContext{}.Inject(ctx, carrier)
	}
	return carrier
}

// GetTraceParent returns the traceparent header value, used to carry the
// trace across Kafka.
func GetTraceParent(ctx context.Context) string {
	return w3c(ctx).Get("traceparent")
}

func GetTraceState(ctx context.Context) string {
	return w3c(ctx).Get("tracestate")
}

func GetTraceID(ctx context.Context) string {
	span := activeSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

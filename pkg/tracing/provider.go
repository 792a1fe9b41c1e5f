package tracing

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/thistle/pkg/tracing/exporters"
)

// Setup installs the global tracer provider. Spans go to the OTLP collector
// at endpoint, or to the debug log when endpoint is empty. The returned
// function flushes and stops the provider.
func Setup(ctx context.Context, serviceName, version, endpoint string, logger ectologger.Logger) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{Logger: logger}
	if endpoint != "" {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.ParseOTLPEndpoint(endpoint))
		if err != nil {
			return nil, err
		}
		exporter = otlp
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(tp.Tracer(serviceName))

	return tp.Shutdown, nil
}

// Package telemetry configures tracing for build runs. Steps and builders
// open spans so slow or repeatedly re-built stages are visible in the trace.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this process in exported spans.
const ServiceName = "packsmith"

// Init installs a stdout trace exporter and returns a shutdown function.
// Traces go to w; a nil writer keeps the provider installed but discards
// spans, which is the mode used by tests.
func Init(ctx context.Context, w io.Writer) (func(context.Context) error, error) {
	if w == nil {
		w = io.Discard
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
		)),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the tracer build stages report spans to.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

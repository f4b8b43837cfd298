// Package telemetry initializes OpenTelemetry trace export over OTLP.
// When OTEL_EXPORTER_OTLP_ENDPOINT is unset everything stays a no-op and
// the service behaves identically without a collector.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sre_agent"

// Init sets up the global tracer provider. The returned shutdown function
// flushes pending spans; it is safe to call even when export is disabled.
func Init(ctx context.Context) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, telemetry export disabled")
		return noop, nil
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "sre-agent"
	}
	slog.Info("Initializing OpenTelemetry", "endpoint", endpoint, "service", serviceName)

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		))
	if err != nil {
		return noop, fmt.Errorf("building otel resource: %w", err)
	}

	// The exporter reads OTEL_EXPORTER_OTLP_ENDPOINT itself.
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return noop, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the service tracer. A no-op tracer when export is disabled.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

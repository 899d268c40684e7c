// Package telemetry wires OpenTelemetry tracing and the ambient meter/tracer
// accessors the rest of the governance engine uses to annotate spans around
// a check-in. Counters and histograms surfaced to operators (served at
// /metrics) are registered separately against a prometheus.Registry —
// see internal/telemetry/metrics.go — since that is the concrete scrape
// surface SPEC_FULL promises, while the OTEL meter stays the ambient
// per-span instrumentation layer traced alongside HTTP/MCP calls.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and closes any exporters Init started.
type Shutdown func(ctx context.Context) error

// Init configures the global OTEL tracer provider. If endpoint is empty,
// tracing is disabled entirely and Shutdown is a no-op: a deployment with no
// collector configured should never block or fail on telemetry setup.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the named tracer off the global provider. Before Init runs
// (or when telemetry is disabled) this is OTEL's no-op tracer, so callers
// never need to nil-check it.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// Meter returns the named meter off the global provider, for ambient
// per-span instrument creation alongside a Tracer. No MeterProvider is
// configured by this package (see the package doc): instruments created
// here safely no-op until a caller wires one.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

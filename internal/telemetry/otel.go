// Package telemetry bootstraps OpenTelemetry trace export and hands every
// built-in service a named Tracer, so a prompt's fan-out across
// retrieve/respond/codify/consolidate/storage can be followed as one trace
// instead of five unrelated log streams (SPEC_FULL.md §B). Grounded on
// the teacher's internal/telemetry/otel.go.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/EricP-Engramic/engramic/internal/config"
)

// Setup installs a batched OTLP/gRPC trace exporter as the global
// TracerProvider and returns a shutdown func to defer. Disabled (a no-op
// shutdown, and every Tracer call becomes a no-op span) unless cfg.Enabled
// and cfg.Endpoint are both set — the same config-gating pattern engramic
// already uses for the Kafka mirror and the status server.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "engramic"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named Tracer a pipeline stage starts its spans on
// (e.g. "engramic/retrieve"). Safe to call before Setup: it resolves
// against whatever TracerProvider is globally installed at call time, a
// no-op one until Setup installs a real exporter.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

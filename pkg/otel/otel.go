// Package otel wires the gateway's telemetry: OTLP trace export and a
// Prometheus bridge for OpenTelemetry metrics. Request-level counters live
// with the handlers; this package only owns providers and exporters.
package otel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	ServiceName    string
	OTLPEndpoint   string // host:port of an OTLP HTTP collector
	MetricsEnabled bool
	TracingEnabled bool

	// SampleRatio bounds trace volume on busy gateways. Zero means sample
	// everything.
	SampleRatio float64
}

// Shutdown flushes and stops every provider Setup started.
type Shutdown func(ctx context.Context) error

// Setup installs the global tracer and meter providers per cfg and returns
// the shutdown hook. Either side can be disabled independently; propagators
// are always installed so trace context flows through even when this
// process exports nothing.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var shutdowns []func(ctx context.Context) error

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		stop, err := setupTracing(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, stop)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.MetricsEnabled {
		stop, err := setupMetrics(res)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, stop)
	}

	return func(ctx context.Context) error {
		for _, stop := range shutdowns {
			if err := stop(ctx); err != nil {
				slog.Error("otel shutdown", "error", err)
			}
		}
		return nil
	}, nil
}

func setupTracing(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func setupMetrics(res *resource.Resource) (func(context.Context) error, error) {
	// The exporter registers on the default Prometheus registry, which the
	// internal metrics listener serves via promhttp.
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("otel prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

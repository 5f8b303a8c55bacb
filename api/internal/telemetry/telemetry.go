// Package telemetry wires OpenTelemetry tracing and metrics for the
// classifier. A disabled Provider is fully functional and records nothing.
package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"wasteiq/api/internal/waste"
)

const instrumentationName = "wasteiq"

type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	classifications  metric.Int64Counter
	classifyDuration metric.Float64Histogram
	remoteAttempts   metric.Int64Counter

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters. When disabled it returns no-op
// providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return newProvider(false, tracenoop.NewTracerProvider().Tracer(""), metricnoop.NewMeterProvider().Meter("")), nil
	}

	slog.Info("telemetry enabled", "protocol", strings.ToLower(cfg.Protocol), "endpoint", cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		spanExp   sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		if spanExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if spanExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, &UnknownProtocolError{Protocol: cfg.Protocol}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := newProvider(true, tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	p.shutdownTraceProvider = tp.Shutdown
	p.shutdownMeterProvider = mp.Shutdown
	return p, nil
}

type UnknownProtocolError struct{ Protocol string }

func (e *UnknownProtocolError) Error() string {
	return "telemetry: unknown OTLP protocol " + e.Protocol
}

func newProvider(enabled bool, tracer trace.Tracer, meter metric.Meter) *Provider {
	p := &Provider{Enabled: enabled, tracer: tracer, meter: meter}
	// telemetry is best-effort: instrument errors leave nil-safe no-ops behind
	var err error
	if p.classifications, err = meter.Int64Counter("wasteiq_classifications_total"); err != nil {
		p.classifications, _ = metricnoop.NewMeterProvider().Meter("").Int64Counter("")
	}
	if p.classifyDuration, err = meter.Float64Histogram("wasteiq_classify_duration_ms", metric.WithUnit("ms")); err != nil {
		p.classifyDuration, _ = metricnoop.NewMeterProvider().Meter("").Float64Histogram("")
	}
	if p.remoteAttempts, err = meter.Int64Counter("wasteiq_remote_attempts_total"); err != nil {
		p.remoteAttempts, _ = metricnoop.NewMeterProvider().Meter("").Int64Counter("")
	}
	return p
}

func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// RecordClassification counts one finished classification by mode and
// category.
func (p *Provider) RecordClassification(ctx context.Context, r waste.Result, elapsed time.Duration) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("wasteiq.mode", string(r.Mode)),
		attribute.String("wasteiq.category", r.Category.String()),
	)
	p.classifications.Add(ctx, 1, attrs)
	p.classifyDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordRemoteAttempt counts one remote detector call by outcome
// (ok, rate_limited, service_error).
func (p *Provider) RecordRemoteAttempt(ctx context.Context, outcome string) {
	if p == nil {
		return
	}
	p.remoteAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("wasteiq.outcome", outcome)))
}

// Package telemetry provides logging and OpenTelemetry instrumentation
// for siivo.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/siivo/internal/config"
)

// Provider wraps OTEL tracer and meter providers
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	sweepDuration    metric.Float64Histogram
	recordsScanned   metric.Int64Counter
	recordsDeleted   metric.Int64Counter
	recordsProtected metric.Int64Counter
	deleteFailures   metric.Int64Counter
	listingErrors    metric.Int64Counter
}

// NewProvider creates a new telemetry provider. The Prometheus reader
// is always installed so the /metrics listener has something to serve;
// OTLP exporters are added only when an endpoint is configured.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("siivo")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	promExporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("siivo")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.sweepDuration, err = p.meter.Float64Histogram(
		"siivo_sweep_duration_seconds",
		metric.WithDescription("Duration of sweep runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create sweep_duration: %w", err)
	}

	p.recordsScanned, err = p.meter.Int64Counter(
		"siivo_records_scanned_total",
		metric.WithDescription("Total records evaluated"),
	)
	if err != nil {
		return fmt.Errorf("create records_scanned: %w", err)
	}

	p.recordsDeleted, err = p.meter.Int64Counter(
		"siivo_records_deleted_total",
		metric.WithDescription("Total records deleted (or simulated in dry-run)"),
	)
	if err != nil {
		return fmt.Errorf("create records_deleted: %w", err)
	}

	p.recordsProtected, err = p.meter.Int64Counter(
		"siivo_records_protected_total",
		metric.WithDescription("Total records kept by the retention filter"),
	)
	if err != nil {
		return fmt.Errorf("create records_protected: %w", err)
	}

	p.deleteFailures, err = p.meter.Int64Counter(
		"siivo_delete_failures_total",
		metric.WithDescription("Total failed delete calls"),
	)
	if err != nil {
		return fmt.Errorf("create delete_failures: %w", err)
	}

	p.listingErrors, err = p.meter.Int64Counter(
		"siivo_listing_errors_total",
		metric.WithDescription("Total failed listing calls"),
	)
	if err != nil {
		return fmt.Errorf("create listing_errors: %w", err)
	}

	return nil
}

// Tracer returns the tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// StartSpan starts a new span
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordSweepDuration records a full sweep's duration
func (p *Provider) RecordSweepDuration(ctx context.Context, provider string, d time.Duration) {
	p.sweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// RecordScanned counts records evaluated in a cloud/kind listing
func (p *Provider) RecordScanned(ctx context.Context, cloud, kind string, count int) {
	p.recordsScanned.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("cloud", cloud),
		attribute.String("kind", kind),
	))
}

// RecordDeleted counts a deleted (or simulated) record
func (p *Provider) RecordDeleted(ctx context.Context, cloud, kind string, dryRun bool) {
	p.recordsDeleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cloud", cloud),
		attribute.String("kind", kind),
		attribute.Bool("dry_run", dryRun),
	))
}

// RecordProtected counts a record the filter kept
func (p *Provider) RecordProtected(ctx context.Context, cloud, kind string) {
	p.recordsProtected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cloud", cloud),
		attribute.String("kind", kind),
	))
}

// RecordDeleteFailure counts a failed delete call
func (p *Provider) RecordDeleteFailure(ctx context.Context, cloud, kind string) {
	p.deleteFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cloud", cloud),
		attribute.String("kind", kind),
	))
}

// RecordListingError counts a failed listing call
func (p *Provider) RecordListingError(ctx context.Context, cloud, kind string) {
	p.listingErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cloud", cloud),
		attribute.String("kind", kind),
	))
}

// Shutdown flushes and shuts down the providers
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}

// Package telemetry wires OpenTelemetry tracing and metrics for the accounts
// service.
//
// The provider installs itself as the global tracer and meter provider, so
// packages instrument themselves through otel.Tracer and otel.Meter without
// holding a reference to it. Metrics are exported in the Prometheus format
// through Handler.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the instrumentation scope and resource service name.
const ServiceName = "accounts"

// Config holds the telemetry configuration.
type Config struct {
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint for traces. Empty disables
	// trace export; spans are still created and sampled.
	OTLPEndpoint string

	// SamplingRate is the trace sampling rate (0.0-1.0).
	SamplingRate float64

	Enabled bool
}

// Provider manages the OpenTelemetry tracer and meter providers.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	loginCounter        metric.Int64Counter
	registrationCounter metric.Int64Counter
}

// NewProvider creates a telemetry provider. A disabled provider is valid and
// every recording method on it is a no-op.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	if err := p.setupTracing(ctx, res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, res *resource.Resource) error {
	var sampler sdktrace.Sampler
	switch {
	case p.config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}

	if p.config.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	return nil
}

func (p *Provider) setupMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	meter := p.Meter()
	var err error

	p.loginCounter, err = meter.Int64Counter(
		"accounts.login.total",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.registrationCounter, err = meter.Int64Counter(
		"accounts.registration.total",
		metric.WithDescription("Total number of completed registration attempts"),
		metric.WithUnit("1"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tracer returns the service tracer. It is safe to call on a nil Provider.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracerProvider == nil {
		return otel.Tracer(ServiceName)
	}
	return p.tracerProvider.Tracer(ServiceName)
}

func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(ServiceName)
	}
	return p.meterProvider.Meter(ServiceName)
}

// Handler serves the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLogin records a login attempt.
func (p *Provider) RecordLogin(ctx context.Context, success bool) {
	if p == nil || p.loginCounter == nil {
		return
	}
	p.loginCounter.Add(ctx, 1, metric.WithAttributes(status(success)))
}

// RecordRegistration records a registration completion attempt.
func (p *Provider) RecordRegistration(ctx context.Context, success bool) {
	if p == nil || p.registrationCounter == nil {
		return
	}
	p.registrationCounter.Add(ctx, 1, metric.WithAttributes(status(success)))
}

func status(success bool) attribute.KeyValue {
	if success {
		return attribute.String("status", "success")
	}
	return attribute.String("status", "failure")
}

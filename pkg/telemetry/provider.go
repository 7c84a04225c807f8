// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/authguard/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the service name for telemetry
	ServiceName string

	// ServiceVersion is the service version for telemetry
	ServiceVersion string

	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	// Nothing is exported over OTLP when empty.
	Endpoint string

	// Headers are sent with every OTLP request
	Headers map[string]string

	// Insecure uses HTTP instead of HTTPS for the OTLP endpoint
	Insecure bool

	// TracingEnabled controls whether spans are exported to Endpoint
	TracingEnabled bool

	// MetricsEnabled controls whether metrics are pushed to Endpoint.
	// Independent of PrometheusEnabled.
	MetricsEnabled bool

	// SamplingRate is the trace sampling ratio (0.0-1.0)
	SamplingRate float64

	// PrometheusEnabled exposes metrics through MetricsHandler
	PrometheusEnabled bool

	// ResourceAttributes is a comma-separated key=value list added to the resource
	ResourceAttributes string
}

// DefaultConfig returns a configuration that exposes Prometheus metrics and
// exports nothing.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "authguard",
		ServiceVersion:    "dev",
		TracingEnabled:    true,
		MetricsEnabled:    true,
		SamplingRate:      0.05,
		PrometheusEnabled: true,
	}
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %v", c.SamplingRate)
	}
	if c.Endpoint != "" && !c.TracingEnabled && !c.MetricsEnabled {
		return errors.New("OTLP endpoint is configured but both tracing and metrics are disabled; " +
			"either enable tracing or metrics, or remove the endpoint")
	}
	return nil
}

// Provider encapsulates the OpenTelemetry providers built from a Config.
type Provider struct {
	config         Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// NewProvider builds tracer and meter providers from config.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	custom, err := ParseResourceAttributes(config.ResourceAttributes)
	if err != nil {
		return nil, err
	}
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}, custom...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource with service name '%s' and version '%s': %w",
			config.ServiceName, config.ServiceVersion, err)
	}

	p := &Provider{config: config}
	if err := p.buildMeterProvider(ctx, res); err != nil {
		return nil, err
	}
	if err := p.buildTracerProvider(ctx, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	return p, nil
}

func (p *Provider) buildMeterProvider(ctx context.Context, res *resource.Resource) error {
	var opts []sdkmetric.Option

	if p.config.PrometheusEnabled {
		reader, handler, err := NewMetricsHandler()
		if err != nil {
			return err
		}
		p.metricsHandler = handler
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	if p.config.Endpoint != "" && p.config.MetricsEnabled {
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(p.config.Endpoint)}
		if len(p.config.Headers) > 0 {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(p.config.Headers))
		}
		if p.config.Insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	if len(opts) == 0 {
		p.meterProvider = metricnoop.NewMeterProvider()
		return nil
	}
	mp := sdkmetric.NewMeterProvider(append(opts, sdkmetric.WithResource(res))...)
	p.meterProvider = mp
	p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	return nil
}

func (p *Provider) buildTracerProvider(ctx context.Context, res *resource.Resource) error {
	if p.config.Endpoint == "" || !p.config.TracingEnabled {
		p.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(p.config.Endpoint)}
	if len(p.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(p.config.Headers))
	}
	if p.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SamplingRate))),
	)
	p.tracerProvider = tp
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	return nil
}

// NewMetricsHandler creates a Prometheus-backed metric reader on a private
// registry together with the handler exposing that registry. Go runtime and
// process collectors are registered alongside.
func NewMetricsHandler() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return exporter, handler, nil
}

// SetGlobal installs the providers and a W3C propagator as the otel globals.
func (p *Provider) SetGlobal() {
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// MetricsHandler returns the Prometheus handler, or nil when Prometheus is disabled.
func (p *Provider) MetricsHandler() http.Handler {
	return p.metricsHandler
}

// Shutdown flushes and stops every provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for _, shutdown := range p.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		logger.Warnw("telemetry shutdown incomplete", "errors", len(errs))
		return fmt.Errorf("telemetry shutdown failed: %w", errors.Join(errs...))
	}
	return nil
}

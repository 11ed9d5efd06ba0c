package observe

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metric exporters understood by [ProviderConfig.MetricsExporter].
const (
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// AttrFlow is the resource attribute naming the flow graph a process serves.
const AttrFlow = "callscript.flow"

// ProviderConfig describes the process to the OpenTelemetry SDK.
type ProviderConfig struct {
	// ServiceName defaults to "callscript".
	ServiceName string

	ServiceVersion string

	// Environment becomes deployment.environment when set.
	Environment string

	// Flow names the flow graph this process serves, usually the graph
	// file's base name.
	Flow string

	// Attributes are extra resource attributes, for example a tenant or a
	// call-center site.
	Attributes map[string]string

	// MetricsExporter is ExporterPrometheus (the default) or ExporterNone.
	MetricsExporter string

	// MetricReader replaces the exporter selected by MetricsExporter.
	MetricReader sdkmetric.Reader

	// TraceExporter is optional. Without one spans are recorded but never
	// exported.
	TraceExporter sdktrace.SpanExporter
}

// Provider holds the SDK providers built from a [ProviderConfig].
type Provider struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	Resource       *resource.Resource
}

// Shutdown flushes and closes both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.MeterProvider.Shutdown(ctx), p.TracerProvider.Shutdown(ctx))
}

// NewProvider builds the meter and tracer providers without registering them
// globally.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reader := cfg.MetricReader
	if reader == nil {
		switch cfg.MetricsExporter {
		case "", ExporterPrometheus:
			if reader, err = promexporter.New(); err != nil {
				return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
			}
		case ExporterNone:
		default:
			return nil, fmt.Errorf("observe: unknown metrics exporter %q", cfg.MetricsExporter)
		}
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}

	return &Provider{
		MeterProvider:  sdkmetric.NewMeterProvider(mpOpts...),
		TracerProvider: sdktrace.NewTracerProvider(tpOpts...),
		Resource:       res,
	}, nil
}

// InitProvider builds the providers with [NewProvider] and registers them as
// the global OTel providers. The returned function flushes and closes them.
func InitProvider(_ context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTracerProvider(p.TracerProvider)
	return p.Shutdown, nil
}

func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "callscript"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	if cfg.Flow != "" {
		attrs = append(attrs, attribute.String(AttrFlow, cfg.Flow))
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Attributes)) {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

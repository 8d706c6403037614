package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// ServiceNamespace groups the backtest and trader services.
const ServiceNamespace = "walkforward"

// Config describes the process being instrumented.
type Config struct {
	ServiceName string
	Version     string
	// Mode is "backtest" or "live"; it becomes the deployment.environment attribute.
	Mode string
	// Writer receives exported spans and log records. Nil means os.Stdout.
	Writer io.Writer
}

// Telemetry owns the trace, metric and log providers.
type Telemetry struct {
	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider
}

// Setup initializes OTel tracing, metrics, and logging with stdout exporters
func Setup(serviceName string) (*Telemetry, error) {
	return SetupWithConfig(Config{ServiceName: serviceName})
}

// NewResource describes cfg. OTEL_RESOURCE_ATTRIBUTES is honoured.
func NewResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
	}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Mode != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Mode))
	}
	return resource.New(ctx, resource.WithFromEnv(), resource.WithAttributes(attrs...))
}

// SetupWithConfig installs global providers for cfg. Metrics are always
// exported through the Prometheus registry.
func SetupWithConfig(cfg Config) (*Telemetry, error) {
	ctx := context.Background()
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(metricExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := GetGlobalMetrics().InitMetrics(mp.Meter(cfg.ServiceName)); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	return &Telemetry{
		tp: tp,
		mp: mp,
		lp: lp,
	}, nil
}

// Shutdown flushes and stops the providers, traces first.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		wrapShutdown("trace", t.tp.Shutdown(ctx)),
		wrapShutdown("meter", t.mp.Shutdown(ctx)),
		wrapShutdown("log", t.lp.Shutdown(ctx)),
	)
}

func wrapShutdown(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s provider shutdown: %w", provider, err)
}

// GetMeter returns a meter for the given name
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer for the given name
func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

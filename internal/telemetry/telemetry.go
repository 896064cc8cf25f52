// Package telemetry provides the OpenTelemetry initialization
// and the trace carriers used by the handlers.
package telemetry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/FerroO2000/relay/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrCollectorUnreachable is returned by Init when the collector port cannot be reached.
var ErrCollectorUnreachable = errors.New("telemetry: collector is not reachable")

// Default configuration values.
const (
	DefaultEndpoint       = "localhost:4317"
	DefaultServiceName    = "relayd"
	DefaultServiceVersion = "0.1.0"
	DefaultTraceRatio     = 0.05
	DefaultMetricInterval = time.Second
)

// Config is the configuration of the OpenTelemetry providers.
type Config struct {
	// Endpoint is the address of the OTLP gRPC collector.
	//
	// Default: "localhost:4317"
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`

	// ServiceName is the name reported in the resource.
	//
	// Default: "relayd"
	ServiceName string `json:"service_name" yaml:"service_name" toml:"service_name"`

	// TraceRatio is the sampling ratio for traces.
	//
	// Default: 0.05
	TraceRatio float64 `json:"trace_ratio" yaml:"trace_ratio" toml:"trace_ratio"`

	// MetricInterval is the export interval of the metrics.
	//
	// Default: 1 second
	MetricInterval time.Duration `json:"metric_interval" yaml:"metric_interval" toml:"metric_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:       DefaultEndpoint,
		ServiceName:    DefaultServiceName,
		TraceRatio:     DefaultTraceRatio,
		MetricInterval: DefaultMetricInterval,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Endpoint", &c.Endpoint, DefaultEndpoint)
	config.CheckNotEmpty(ac, "ServiceName", &c.ServiceName, DefaultServiceName)
	config.CheckNotNegative(ac, "TraceRatio", &c.TraceRatio, DefaultTraceRatio)
	config.CheckNotGreater(ac, "TraceRatio", &c.TraceRatio, 1)
	config.CheckPositive(ac, "MetricInterval", &c.MetricInterval, DefaultMetricInterval)
}

// Providers holds the providers created by Init.
type Providers struct {
	conn *grpc.ClientConn

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
}

// isCollectorReachable checks if the OTLP collector port is reachable
func isCollectorReachable(endpoint string) bool {
	conn, err := net.DialTimeout("tcp", endpoint, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Init initializes OpenTelemetry and registers the global providers.
// It returns ErrCollectorUnreachable if the collector cannot be reached,
// in which case the global no-op providers are left in place.
func Init(ctx context.Context, cfg *Config) (*Providers, error) {
	if !isCollectorReachable(cfg.Endpoint) {
		return nil, ErrCollectorUnreachable
	}

	grpcTransport := grpc.WithTransportCredentials(insecure.NewCredentials())
	grpcConn, err := grpc.NewClient(cfg.Endpoint, grpcTransport)
	if err != nil {
		return nil, err
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		grpcConn.Close()
		return nil, err
	}

	p := &Providers{conn: grpcConn}

	// Trace
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(grpcConn))
	if err != nil {
		grpcConn.Close()
		return nil, err
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceRatio))),
	)
	otel.SetTracerProvider(p.tracerProvider)

	// Trace Propagator
	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Meter
	meterExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(meterExporter, sdkmetric.WithInterval(cfg.MetricInterval)),
		),
	)
	otel.SetMeterProvider(p.meterProvider)

	// Logs
	logExporter, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(grpcConn))
	if err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	global.SetLoggerProvider(p.loggerProvider)

	// Runtime
	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, errors.Join(err, p.Shutdown(ctx))
	}

	return p, nil
}

// Shutdown flushes and shuts down the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error

	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}

	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}

	if p.loggerProvider != nil {
		errs = append(errs, p.loggerProvider.Shutdown(ctx))
	}

	errs = append(errs, p.conn.Close())

	return errors.Join(errs...)
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(DefaultServiceVersion),
		),
	)
}

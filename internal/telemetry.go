// Package internal contains the telemetry shared by all the relay components.
package internal

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/FerroO2000/relay"

var (
	loggerMux sync.RWMutex
	logger    = newDefaultLogger()
)

func newDefaultLogger() *slog.Logger {
	out := os.Stdout

	return slog.New(tint.NewHandler(colorable.NewColorable(out), &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(out.Fd()),
	}))
}

// SetLogger overrides the logger used by every telemetry
// created after the call.
func SetLogger(l *slog.Logger) {
	loggerMux.Lock()
	defer loggerMux.Unlock()

	logger = l
}

func getLogger() *slog.Logger {
	loggerMux.RLock()
	defer loggerMux.RUnlock()

	return logger
}

// Telemetry groups the logger, the meter and the tracer of a component.
type Telemetry struct {
	logger *slog.Logger

	meter  metric.Meter
	tracer trace.Tracer

	attrs metric.MeasurementOption
}

// NewTelemetry returns the telemetry for a component.
// The kind is the family of the component (e.g. "relay", "handler")
// and the name identifies the single instance.
func NewTelemetry(kind, name string) *Telemetry {
	scope := instrumentationName + "/" + kind

	return &Telemetry{
		logger: getLogger().With("kind", kind, "name", name),

		meter:  otel.Meter(scope),
		tracer: otel.Tracer(scope),

		attrs: metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("name", name),
		),
	}
}

// LogInfo logs an info message.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// LogWarn logs a warning message.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// LogError logs an error message.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.Error(msg, append([]any{tint.Err(err)}, args...)...)
}

// LogDebug logs a debug message.
func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.logger.Debug(msg, args...)
}

// NewCounter registers an observable counter whose value is read from fn.
func (t *Telemetry) NewCounter(name string, fn func() int64) {
	_, err := t.meter.Int64ObservableCounter(name,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn(), t.attrs)
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create counter", err, "counter", name)
	}
}

// NewUpDownCounter registers an observable up/down counter whose value is read from fn.
func (t *Telemetry) NewUpDownCounter(name string, fn func() int64) {
	_, err := t.meter.Int64ObservableUpDownCounter(name,
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(fn(), t.attrs)
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to create up/down counter", err, "counter", name)
	}
}

// Histogram is a thin wrapper around an int64 histogram that
// records the telemetry attributes along with each value.
type Histogram struct {
	hist  metric.Int64Histogram
	attrs metric.MeasurementOption
}

// Record records a value.
func (h *Histogram) Record(ctx context.Context, value int64) {
	if h.hist == nil {
		return
	}

	h.hist.Record(ctx, value, h.attrs)
}

// NewHistogram returns a new histogram.
func (t *Telemetry) NewHistogram(name string, opts ...metric.Int64HistogramOption) *Histogram {
	hist, err := t.meter.Int64Histogram(name, opts...)
	if err != nil {
		t.LogError("failed to create histogram", err, "histogram", name)
	}

	return &Histogram{
		hist:  hist,
		attrs: t.attrs,
	}
}

// NewTrace starts a new span.
func (t *Telemetry) NewTrace(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// InjectTrace writes the span context of ctx into the carrier.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

package relay

import (
	"context"

	"github.com/FerroO2000/relay/internal"
)

// Telemetry exposes logging, metrics and tracing to the handlers.
type Telemetry = internal.Telemetry

// Handler processes the items of a relay.
// All its methods are called from the consumer goroutine,
// except Init which is called by New.
type Handler[T any] interface {
	// Init is called once when the relay is created.
	Init(ctx context.Context) error

	// Handle is called for every item, in submission order.
	Handle(ctx context.Context, item T) error

	// Close is called once when the consumer loop exits.
	Close()

	// SetTelemetry sets the telemetry of the relay.
	// It can be used to add traces, logs, and metrics to the handler.
	SetTelemetry(tel *Telemetry)
}

// HandlerBase is a base implementation of the Handler interface.
// It provides a Telemetry field and no-op Init and Close methods,
// but not the Handle method.
type HandlerBase struct {
	Telemetry *Telemetry
}

// Init is a no-op implementation of the handler Init method.
func (hb *HandlerBase) Init(_ context.Context) error {
	return nil
}

// Close is a no-op implementation of the handler Close method.
func (hb *HandlerBase) Close() {}

// SetTelemetry sets the telemetry for the handler.
func (hb *HandlerBase) SetTelemetry(tel *Telemetry) {
	hb.Telemetry = tel
}

var _ Handler[any] = (*HandlerFunc[any])(nil)

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[T any] struct {
	HandlerBase

	fn func(ctx context.Context, item T) error
}

// NewHandlerFunc returns a handler that calls fn for every item.
func NewHandlerFunc[T any](fn func(ctx context.Context, item T) error) *HandlerFunc[T] {
	return &HandlerFunc[T]{
		fn: fn,
	}
}

// Handle calls the wrapped function.
func (hf *HandlerFunc[T]) Handle(ctx context.Context, item T) error {
	return hf.fn(ctx, item)
}

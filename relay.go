package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/FerroO2000/relay/internal"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/FerroO2000/relay/internal/envelope"
	"github.com/FerroO2000/relay/internal/rb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state of a relay.
type State uint32

const (
	// StateOpen means the relay accepts items and the consumer loop is running.
	StateOpen State = iota
	// StateDraining means every handle has been released and
	// the consumer loop is processing the remaining items.
	StateDraining
	// StateClosed means the consumer loop has exited.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type relay[T any] struct {
	tel *internal.Telemetry

	cfg *Config

	handler Handler[T]

	queue *rb.RingBuffer[*envelope.Envelope[T]]

	state atomic.Uint32

	handles      atomic.Int64
	nextHandleID atomic.Uint64
	nextSeqNum   atomic.Uint64

	done chan struct{}
	err  error

	traceString string

	metrics *relayMetrics
}

// New creates a relay that delivers the submitted items to the handler,
// one at a time, from a dedicated goroutine.
//
// The handler is initialized with ctx before New returns. The context is not
// used to stop the relay: the consumer goroutine exits only when every handle
// has been released and the queue is drained, or when the handler fails.
// If cfg is nil the default configuration is used.
func New[T any](ctx context.Context, handler Handler[T], cfg *Config) (*Handle[T], *JoinHandle, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// The caller's configuration is left untouched by the validation
	relayCfg := *cfg
	config.NewValidator(internal.NewTelemetry("config", "relay")).Validate(&relayCfg)

	tel := internal.NewTelemetry("relay", relayCfg.Name)

	handler.SetTelemetry(tel)
	if err := handler.Init(ctx); err != nil {
		tel.LogError("failed to init handler", err)
		return nil, nil, fmt.Errorf("relay: initializing handler: %w", err)
	}

	r := &relay[T]{
		tel: tel,

		cfg: &relayCfg,

		handler: handler,

		queue: rb.NewRingBuffer[*envelope.Envelope[T]](relayCfg.InitialCapacity),

		done: make(chan struct{}),

		traceString: fmt.Sprintf("handle %s item", relayCfg.Name),

		metrics: newRelayMetrics(tel),
	}

	r.metrics.init(
		func() int64 { return r.handles.Load() },
		func() int64 { return int64(r.queue.Len()) },
	)

	r.handles.Store(1)
	first := r.newHandle()

	go r.run(context.WithoutCancel(ctx))

	return first, &JoinHandle{consumer: r}, nil
}

// NewFunc is a shorthand for New with a HandlerFunc.
func NewFunc[T any](ctx context.Context, fn func(ctx context.Context, item T) error, cfg *Config) (*Handle[T], *JoinHandle, error) {
	return New(ctx, NewHandlerFunc(fn), cfg)
}

func (r *relay[T]) getState() State {
	return State(r.state.Load())
}

func (r *relay[T]) submit(ctx context.Context, handleID uint64, item T) error {
	if r.getState() == StateClosed {
		return ErrChannelClosed
	}

	env := envelope.New(item, handleID, r.nextSeqNum.Add(1))
	env.SaveSpanContext(ctx)

	if err := r.queue.Write(env); err != nil {
		return ErrChannelClosed
	}

	r.metrics.incrementSubmittedItems()

	return nil
}

// acquire adds a reference for a new handle.
// It fails if all the handles have already been released
// or if the consumer loop has exited.
func (r *relay[T]) acquire() bool {
	if r.getState() == StateClosed {
		return false
	}

	for {
		curr := r.handles.Load()
		if curr <= 0 {
			return false
		}

		if r.handles.CompareAndSwap(curr, curr+1) {
			return true
		}
	}
}

func (r *relay[T]) release() {
	if r.handles.Add(-1) > 0 {
		return
	}

	if r.state.CompareAndSwap(uint32(StateOpen), uint32(StateDraining)) {
		r.tel.LogInfo("all handles released, draining", "pending_items", r.queue.Len())
	}

	r.queue.Close()
}

func (r *relay[T]) run(ctx context.Context) {
	defer close(r.done)

	r.tel.LogInfo("running",
		"initial_capacity", r.cfg.InitialCapacity,
		"error_policy", r.cfg.ErrorPolicy,
	)

	for {
		env, err := r.queue.Read(ctx)
		if err != nil {
			// The queue is closed and empty
			break
		}

		if err := r.process(ctx, env); err != nil {
			r.fail(err)
			break
		}
	}

	r.closeHandler()

	r.state.Store(uint32(StateClosed))

	r.tel.LogInfo("closed",
		"processed_items", r.metrics.processedItems.Load(),
		"processing_errors", r.metrics.processingErrors.Load(),
		"lost_items", r.metrics.lostItems.Load(),
	)
}

func (r *relay[T]) process(ctx context.Context, env *envelope.Envelope[T]) (err error) {
	// Link the processing to the span of the producer
	ctx = env.LoadSpanContext(ctx)

	ctx, span := r.tel.NewTrace(ctx, r.traceString, trace.WithAttributes(
		attribute.Int64("sequence_number", int64(env.SequenceNumber())),
		attribute.Int64("handle_id", int64(env.HandleID())),
	))
	defer span.End()

	r.metrics.recordQueueLatency(ctx, env.QueueLatency())

	defer func() {
		if val := recover(); val != nil {
			err = &PanicError{
				Value:          val,
				SequenceNumber: env.SequenceNumber(),
				Stack:          debug.Stack(),
			}

			span.RecordError(err)
			span.SetStatus(codes.Error, "handler panicked")
		}
	}()

	if handleErr := r.handler.Handle(ctx, env.Item()); handleErr != nil {
		r.metrics.incrementProcessingErrors()

		span.RecordError(handleErr)
		span.SetStatus(codes.Error, handleErr.Error())

		if r.cfg.ErrorPolicy == ErrorPolicyFatal {
			return &HandlerError{
				SequenceNumber: env.SequenceNumber(),
				Err:            handleErr,
			}
		}

		r.tel.LogError("failed to process item", handleErr,
			"sequence_number", env.SequenceNumber(), "handle_id", env.HandleID())

		return nil
	}

	r.metrics.incrementProcessedItems()

	return nil
}

// fail closes the relay after a fatal error.
// The state is set before closing the queue, so that
// a submit either sees the closed state or a closed queue.
func (r *relay[T]) fail(err error) {
	r.err = err

	r.state.Store(uint32(StateClosed))
	r.queue.Close()

	lost := r.queue.Discard()
	r.metrics.addLostItems(lost)

	r.tel.LogError("consumer loop failed, relay closed", err, "lost_items", lost)
}

func (r *relay[T]) closeHandler() {
	defer func() {
		if val := recover(); val != nil {
			r.tel.LogError("handler panicked while closing", fmt.Errorf("%v", val))
		}
	}()

	r.handler.Close()
}

func (r *relay[T]) doneCh() <-chan struct{} {
	return r.done
}

func (r *relay[T]) exitErr() error {
	return r.err
}

func (r *relay[T]) pending() int {
	return r.queue.Len()
}

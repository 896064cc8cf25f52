package relay

import (
	"context"
	"runtime"
	"sync/atomic"
)

type handleState[T any] struct {
	r        *relay[T]
	released atomic.Bool
}

func (hs *handleState[T]) release() bool {
	if !hs.released.CompareAndSwap(false, true) {
		return false
	}

	hs.r.release()
	return true
}

// Handle is the submission side of a relay.
//
// A handle is safe for concurrent use. Every handle must be released
// once the producer is done with it: the relay starts draining when
// the last handle is released. A handle that becomes unreachable
// without being released is released by the garbage collector.
type Handle[T any] struct {
	id    uint64
	state *handleState[T]
}

func (r *relay[T]) newHandle() *Handle[T] {
	h := &Handle[T]{
		id: r.nextHandleID.Add(1),
		state: &handleState[T]{
			r: r,
		},
	}

	runtime.AddCleanup(h, func(hs *handleState[T]) {
		if hs.release() {
			hs.r.tel.LogWarn("handle garbage collected without being released")
		}
	}, h.state)

	return h
}

// ID returns the identifier of the handle, unique within its relay.
func (h *Handle[T]) ID() uint64 {
	return h.id
}

// Submit enqueues an item. It never blocks.
// It returns ErrChannelClosed if the consumer loop has exited
// or if the handle has been released.
func (h *Handle[T]) Submit(item T) error {
	return h.SubmitContext(context.Background(), item)
}

// SubmitContext is like Submit, but it propagates the span found in ctx
// to the processing of the item. The context does not cancel the submission.
func (h *Handle[T]) SubmitContext(ctx context.Context, item T) error {
	if h.state.released.Load() {
		return ErrChannelClosed
	}

	return h.state.r.submit(ctx, h.id, item)
}

// Clone returns a new handle feeding the same relay.
// It returns ErrChannelClosed if the handle has been released
// or if the consumer loop has exited.
func (h *Handle[T]) Clone() (*Handle[T], error) {
	if h.state.released.Load() {
		return nil, ErrChannelClosed
	}

	if !h.state.r.acquire() {
		return nil, ErrChannelClosed
	}

	return h.state.r.newHandle(), nil
}

// Release gives up the handle. Calling it more than once has no effect.
// When the last handle of a relay is released the consumer loop
// processes the remaining items and exits.
func (h *Handle[T]) Release() {
	h.state.release()
}

// IsReleased states whether the handle has been released.
func (h *Handle[T]) IsReleased() bool {
	return h.state.released.Load()
}

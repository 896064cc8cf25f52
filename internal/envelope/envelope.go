// Package envelope contains the structure carried through the relay queue.
package envelope

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Envelope wraps a submitted item with its delivery metadata.
type Envelope[T any] struct {
	item T

	handleID       uint64
	sequenceNumber uint64
	submitTime     time.Time
	span           trace.SpanContext
}

// New returns a new envelope for the given item.
func New[T any](item T, handleID, sequenceNumber uint64) *Envelope[T] {
	return &Envelope[T]{
		item: item,

		handleID:       handleID,
		sequenceNumber: sequenceNumber,
		submitTime:     time.Now(),
	}
}

// Item returns the wrapped item.
func (e *Envelope[T]) Item() T {
	return e.item
}

// HandleID returns the id of the handle the item was submitted through.
func (e *Envelope[T]) HandleID() uint64 {
	return e.handleID
}

// SequenceNumber returns the relay-wide submission sequence number.
// It is strictly increasing for items of the same handle.
func (e *Envelope[T]) SequenceNumber() uint64 {
	return e.sequenceNumber
}

// SubmitTime returns the time the item was submitted.
func (e *Envelope[T]) SubmitTime() time.Time {
	return e.submitTime
}

// QueueLatency returns the time elapsed since the item was submitted.
func (e *Envelope[T]) QueueLatency() time.Duration {
	return time.Since(e.submitTime)
}

// SaveSpanContext stores the span context found in ctx, if any.
func (e *Envelope[T]) SaveSpanContext(ctx context.Context) {
	e.span = trace.SpanContextFromContext(ctx)
}

// LoadSpanContext loads the stored span context into the provided context.
func (e *Envelope[T]) LoadSpanContext(ctx context.Context) context.Context {
	if !e.span.IsValid() {
		return ctx
	}

	return trace.ContextWithRemoteSpanContext(ctx, e.span)
}

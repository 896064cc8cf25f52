// Package rb provides an unbounded multi producer/single consumer generic ring buffer.
package rb

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when the buffer is closed.
var ErrClosed = errors.New("ring buffer: buffer is closed")

// MinCapacity is the smallest capacity a buffer is created with.
const MinCapacity = 8

// RingBuffer is an unbounded, growable FIFO ring buffer.
// Any number of goroutines may write, only one goroutine may read.
type RingBuffer[T any] struct {
	mux *sync.Mutex

	// slots holds the items, its length is always a power of 2
	slots   []T
	capMask int

	head int
	size int

	initialCapacity int

	isClosed bool

	// notEmpty is signaled on every write and closed when the buffer is closed
	notEmpty chan struct{}
}

// NewRingBuffer returns a new ring buffer.
// The capacity is rounded up to the next power of 2 and it is the
// size the buffer shrinks back to when it is mostly empty.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	parsedCapacity := roundToPowerOf2(max(capacity, MinCapacity))

	return &RingBuffer[T]{
		mux: &sync.Mutex{},

		slots:   make([]T, parsedCapacity),
		capMask: parsedCapacity - 1,

		initialCapacity: parsedCapacity,

		notEmpty: make(chan struct{}, 1),
	}
}

func roundToPowerOf2(n int) int {
	pow := 1
	for pow < n {
		pow <<= 1
	}
	return pow
}

// resize moves the items into a new slice of the given capacity.
// The caller must hold the lock.
func (rb *RingBuffer[T]) resize(capacity int) {
	slots := make([]T, capacity)

	for i := range rb.size {
		slots[i] = rb.slots[(rb.head+i)&rb.capMask]
	}

	rb.slots = slots
	rb.capMask = capacity - 1
	rb.head = 0
}

// Write appends an item to the buffer. It never blocks:
// when the buffer is full it grows.
func (rb *RingBuffer[T]) Write(item T) error {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	if rb.isClosed {
		return ErrClosed
	}

	if rb.size == len(rb.slots) {
		rb.resize(len(rb.slots) << 1)
	}

	rb.slots[(rb.head+rb.size)&rb.capMask] = item
	rb.size++

	// Wake up the reader, if it is not already awake
	select {
	case rb.notEmpty <- struct{}{}:
	default:
	}

	return nil
}

// pop removes the oldest item. The caller must hold the lock.
func (rb *RingBuffer[T]) pop() (T, bool) {
	var zero T

	if rb.size == 0 {
		return zero, false
	}

	item := rb.slots[rb.head]
	rb.slots[rb.head] = zero

	rb.head = (rb.head + 1) & rb.capMask
	rb.size--

	// Shrink when a grown buffer is mostly empty
	if len(rb.slots) > rb.initialCapacity && rb.size < len(rb.slots)>>2 {
		rb.resize(len(rb.slots) >> 1)
	}

	return item, true
}

// Read removes and returns the oldest item, waiting for one if the buffer is empty.
// Items written before Close are still returned; once the buffer is closed
// and empty ErrClosed is returned.
func (rb *RingBuffer[T]) Read(ctx context.Context) (T, error) {
	for {
		rb.mux.Lock()

		item, ok := rb.pop()
		if ok {
			rb.mux.Unlock()
			return item, nil
		}

		if rb.isClosed {
			rb.mux.Unlock()
			return item, ErrClosed
		}

		rb.mux.Unlock()

		select {
		case <-ctx.Done():
			return item, ctx.Err()
		case <-rb.notEmpty:
		}
	}
}

// Len returns the number of items in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	return rb.size
}

// Cap returns the current number of slots of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	return len(rb.slots)
}

// Close closes the buffer. Further writes fail with ErrClosed,
// reads keep returning the remaining items.
func (rb *RingBuffer[T]) Close() {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	if rb.isClosed {
		return
	}

	rb.isClosed = true
	close(rb.notEmpty)
}

// IsClosed states whether the buffer is closed.
func (rb *RingBuffer[T]) IsClosed() bool {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	return rb.isClosed
}

// Discard drops all the items in the buffer and returns how many were dropped.
func (rb *RingBuffer[T]) Discard() int {
	rb.mux.Lock()
	defer rb.mux.Unlock()

	dropped := rb.size

	rb.slots = make([]T, rb.initialCapacity)
	rb.capMask = rb.initialCapacity - 1
	rb.head = 0
	rb.size = 0

	return dropped
}

package relay

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned when an item is submitted after the consumer loop
// has exited, or through a handle that has already been released.
var ErrChannelClosed = errors.New("relay: channel is closed")

// PanicError is returned by the join handle when the handler panicked
// while processing an item.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// SequenceNumber is the sequence number of the item being processed.
	SequenceNumber uint64
	// Stack is the stack trace of the panicking goroutine.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("relay: handler panicked processing item %d: %v", e.SequenceNumber, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HandlerError is returned by the join handle when the handler returned
// an error and the relay runs with ErrorPolicyFatal.
type HandlerError struct {
	// SequenceNumber is the sequence number of the failed item.
	SequenceNumber uint64
	// Err is the error returned by the handler.
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("relay: handler failed processing item %d: %v", e.SequenceNumber, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

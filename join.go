package relay

import "context"

type consumer interface {
	doneCh() <-chan struct{}
	exitErr() error
	getState() State
	pending() int
}

// JoinHandle is used to wait for the consumer loop of a relay to exit.
type JoinHandle struct {
	consumer consumer
}

// Wait blocks until the consumer loop exits.
// It returns nil if the loop exited after draining the queue,
// a *PanicError if the handler panicked, or a *HandlerError
// if the handler failed under ErrorPolicyFatal.
func (j *JoinHandle) Wait() error {
	<-j.consumer.doneCh()
	return j.consumer.exitErr()
}

// WaitContext is like Wait, but it gives up when ctx is done
// and returns the context error.
func (j *JoinHandle) WaitContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.consumer.doneCh():
		return j.consumer.exitErr()
	}
}

// Done returns a channel that is closed when the consumer loop exits.
func (j *JoinHandle) Done() <-chan struct{} {
	return j.consumer.doneCh()
}

// State returns the current state of the relay.
func (j *JoinHandle) State() State {
	return j.consumer.getState()
}

// Pending returns the number of items waiting to be processed.
func (j *JoinHandle) Pending() int {
	return j.consumer.pending()
}

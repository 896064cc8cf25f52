// Package relay provides an in-process, ordered hand-off of items from any number
// of producers to a single background consumer.
//
// A relay is created with [New], which returns the first [Handle] and a [JoinHandle]:
//
//	h, join, err := relay.New(ctx, handler, relay.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	other, _ := h.Clone()
//	go produce(other)
//
//	h.Submit(item)
//	h.Release()
//
//	err = join.Wait()
//
// Submitting never blocks: the queue is unbounded. Items submitted through the same
// handle are processed in submission order, items of different handles interleave.
// The consumer goroutine exits once every handle has been released and the queue
// has been drained. If the handler panics the relay is closed, the queued items are
// discarded and every further submission fails with [ErrChannelClosed].
package relay

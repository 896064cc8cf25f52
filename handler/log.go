package handler

import (
	"context"

	"github.com/FerroO2000/relay"
)

var _ relay.Handler[any] = (*Log[any])(nil)

// Log is a handler that logs every item at info level.
type Log[T any] struct {
	relay.HandlerBase

	msg string
}

// NewLog returns a new log handler. The message defaults to "item".
func NewLog[T any](msg string) *Log[T] {
	if msg == "" {
		msg = "item"
	}

	return &Log[T]{
		msg: msg,
	}
}

// Handle logs the item.
func (lh *Log[T]) Handle(_ context.Context, item T) error {
	lh.Telemetry.LogInfo(lh.msg, "item", item)
	return nil
}

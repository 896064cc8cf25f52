package handler

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/store"
)

// ErrNilStore is returned by NewStore when the store is nil.
var ErrNilStore = errors.New("handler: store is nil")

// StoreEncodeFunc converts an item into a store item.
// A non-empty reference makes the reference key point to the item.
type StoreEncodeFunc[T any] func(item T) (storeItem store.Item, reference string, err error)

var _ relay.Handler[any] = (*Store[any])(nil)

// Store is a handler that puts every item into a store.
type Store[T any] struct {
	relay.HandlerBase

	store  *store.Store
	encode StoreEncodeFunc[T]

	storedItems atomic.Int64
}

// NewStore returns a new store handler.
func NewStore[T any](s *store.Store, encode StoreEncodeFunc[T]) (*Store[T], error) {
	if s == nil {
		return nil, ErrNilStore
	}

	return &Store[T]{
		store:  s,
		encode: encode,
	}, nil
}

// Init initializes the handler.
func (sh *Store[T]) Init(_ context.Context) error {
	sh.Telemetry.NewCounter("stored_items", func() int64 { return sh.storedItems.Load() })
	return nil
}

// Handle encodes the item and stores it.
func (sh *Store[T]) Handle(_ context.Context, item T) error {
	storeItem, ref, err := sh.encode(item)
	if err != nil {
		return err
	}

	sh.store.PutItem(storeItem)

	if ref != "" {
		sh.store.SetReference(ref, storeItem.ID)
	}

	sh.storedItems.Add(1)

	return nil
}

// Package store provides an explicitly owned, bounded item store.
//
// Items are kept in an LRU cache keyed by id. References map an arbitrary
// key (e.g. a file extension) to the id of an item.
package store

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/relay/internal"
	"github.com/FerroO2000/relay/internal/config"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// NullItem is returned along with an error.
	NullItem = Item{}

	// ErrItemNotFound is returned when an item could not be found.
	ErrItemNotFound = errors.New("item could not be found in the store")
	// ErrReferenceNotFound is returned when a reference could not be found.
	ErrReferenceNotFound = errors.New("reference could not be found in the store")
	// ErrItemInactive is returned when a referenced item is not active.
	ErrItemInactive = errors.New("item is not active")
)

// ItemNotFoundError carries the id of the missing item.
// It matches ErrItemNotFound.
type ItemNotFoundError struct {
	ID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item with ID %q not found in the store", e.ID)
}

// Is reports whether target is ErrItemNotFound.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// Item is an entry of the store.
type Item struct {
	ID        string
	Payload   []byte
	Active    bool
	UpdatedAt time.Time
}

// Default configuration values for the store.
const (
	DefaultItemCapacity      = 4096
	DefaultReferenceCapacity = 1024
)

// Config is the configuration of a store.
type Config struct {
	// ItemCapacity is the maximum number of items kept by the store.
	// The least recently used items are evicted first.
	//
	// Default: 4096
	ItemCapacity int `json:"item_capacity" yaml:"item_capacity" toml:"item_capacity"`

	// ReferenceCapacity is the maximum number of references kept by the store.
	//
	// Default: 1024
	ReferenceCapacity int `json:"reference_capacity" yaml:"reference_capacity" toml:"reference_capacity"`
}

// DefaultConfig returns the default configuration for a store.
func DefaultConfig() *Config {
	return &Config{
		ItemCapacity:      DefaultItemCapacity,
		ReferenceCapacity: DefaultReferenceCapacity,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckPositive(ac, "ItemCapacity", &c.ItemCapacity, DefaultItemCapacity)
	config.CheckPositive(ac, "ReferenceCapacity", &c.ReferenceCapacity, DefaultReferenceCapacity)
}

// Store holds items and references. It is safe for concurrent use.
type Store struct {
	tel *internal.Telemetry

	items      *lru.Cache[string, Item]
	references *lru.Cache[string, string]

	evictedItems atomic.Int64
}

// New returns a new store. If cfg is nil the default configuration is used.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	storeCfg := *cfg

	tel := internal.NewTelemetry("store", "items")
	config.NewValidator(tel).Validate(&storeCfg)

	s := &Store{
		tel: tel,
	}

	items, err := lru.New[string, Item](storeCfg.ItemCapacity)
	if err != nil {
		return nil, err
	}

	references, err := lru.New[string, string](storeCfg.ReferenceCapacity)
	if err != nil {
		return nil, err
	}

	s.items = items
	s.references = references

	tel.NewUpDownCounter("stored_items", func() int64 { return int64(s.items.Len()) })
	tel.NewUpDownCounter("stored_references", func() int64 { return int64(s.references.Len()) })
	tel.NewCounter("evicted_items", func() int64 { return s.evictedItems.Load() })

	return s, nil
}

// PutItem adds or replaces an item.
func (s *Store) PutItem(item Item) {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}

	if s.items.Add(item.ID, item) {
		s.evictedItems.Add(1)
	}
}

// GetItem returns the item with the given id.
func (s *Store) GetItem(id string) (Item, error) {
	item, ok := s.items.Get(id)
	if !ok {
		return NullItem, &ItemNotFoundError{ID: id}
	}
	return item, nil
}

// RemoveItem removes the item with the given id and
// reports whether it was present.
func (s *Store) RemoveItem(id string) bool {
	return s.items.Remove(id)
}

// SetReference makes key point to the item with the given id.
func (s *Store) SetReference(key, id string) {
	s.references.Add(key, id)
}

// GetReference returns the item id referenced by key.
func (s *Store) GetReference(key string) (string, error) {
	id, ok := s.references.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrReferenceNotFound, key)
	}
	return id, nil
}

// GetItemByReference returns the active item referenced by key.
func (s *Store) GetItemByReference(key string) (Item, error) {
	id, err := s.GetReference(key)
	if err != nil {
		return NullItem, err
	}

	item, err := s.GetItem(id)
	if err != nil {
		return NullItem, err
	}

	if !item.Active {
		return NullItem, fmt.Errorf("%w: %q", ErrItemInactive, id)
	}

	return item, nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	return s.items.Len()
}

// Evicted returns the number of items evicted because the store was full.
func (s *Store) Evicted() int64 {
	return s.evictedItems.Load()
}

package handler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// RedisStreamConfig structs contains the configuration for the Redis stream handler.
type RedisStreamConfig struct {
	// Address of the Redis server.
	//
	// Default: localhost:6379
	Address string `json:"address" yaml:"address" toml:"address"`

	// Password used to authenticate, if any.
	Password string `json:"password" yaml:"password" toml:"password"`

	// DB is the database selected after connecting.
	//
	// Default: 0
	DB int `json:"db" yaml:"db" toml:"db"`

	// Stream is the key of the stream the entries are added to.
	//
	// Default: relay
	Stream string `json:"stream" yaml:"stream" toml:"stream"`

	// MaxLen caps the length of the stream, older entries are trimmed.
	//
	// Default: 10000
	MaxLen int64 `json:"max_len" yaml:"max_len" toml:"max_len"`

	// Approx makes the trimming approximate, which is much cheaper for Redis.
	//
	// Default: true
	Approx bool `json:"approx" yaml:"approx" toml:"approx"`
}

// DefaultRedisStreamConfig returns the default Redis stream handler config.
func DefaultRedisStreamConfig() *RedisStreamConfig {
	return &RedisStreamConfig{
		Address: "localhost:6379",
		DB:      0,
		Stream:  "relay",
		MaxLen:  10_000,
		Approx:  true,
	}
}

// Validate checks the configuration.
func (c *RedisStreamConfig) Validate(ac *config.AnomalyCollector) {
	def := DefaultRedisStreamConfig()

	config.CheckNotEmpty(ac, "Address", &c.Address, def.Address)
	config.CheckNotNegative(ac, "DB", &c.DB, def.DB)
	config.CheckNotEmpty(ac, "Stream", &c.Stream, def.Stream)
	config.CheckPositive(ac, "MaxLen", &c.MaxLen, def.MaxLen)
}

///////////////
//  HANDLER  //
///////////////

// RedisStreamEncodeFunc converts an item into the values of a stream entry.
type RedisStreamEncodeFunc[T any] func(item T) (map[string]any, error)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

var _ relay.Handler[any] = (*RedisStream[any])(nil)

// RedisStream is a handler that adds every item to a Redis stream.
type RedisStream[T any] struct {
	relay.HandlerBase

	cfg    *RedisStreamConfig
	encode RedisStreamEncodeFunc[T]

	client streamAdder

	addedEntries atomic.Int64
}

// NewRedisStream returns a new Redis stream handler.
// If cfg is nil the default configuration is used.
func NewRedisStream[T any](cfg *RedisStreamConfig, encode RedisStreamEncodeFunc[T]) *RedisStream[T] {
	if cfg == nil {
		cfg = DefaultRedisStreamConfig()
	}

	redisCfg := *cfg

	return &RedisStream[T]{
		cfg:    &redisCfg,
		encode: encode,
	}
}

// Init validates the configuration, connects to Redis
// and checks that the server is reachable.
func (rh *RedisStream[T]) Init(ctx context.Context) error {
	config.NewValidator(rh.Telemetry).Validate(rh.cfg)

	if rh.client == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     rh.cfg.Address,
			Password: rh.cfg.Password,
			DB:       rh.cfg.DB,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connecting to redis at %s: %w", rh.cfg.Address, err)
		}

		rh.client = client
	}

	rh.Telemetry.NewCounter("added_entries", func() int64 { return rh.addedEntries.Load() })

	return nil
}

// Handle encodes the item and adds it to the stream.
func (rh *RedisStream[T]) Handle(ctx context.Context, item T) error {
	ctx, span := rh.Telemetry.NewTrace(ctx, "add redis stream entry")
	defer span.End()

	values, err := rh.encode(item)
	if err != nil {
		return fmt.Errorf("encoding stream entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: rh.cfg.Stream,
		ID:     "*",
		MaxLen: rh.cfg.MaxLen,
		Approx: rh.cfg.Approx,
		Values: values,
	}

	id, err := rh.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("adding entry to stream %s: %w", rh.cfg.Stream, err)
	}

	span.SetAttributes(
		attribute.String("stream", rh.cfg.Stream),
		attribute.String("entry_id", id),
	)

	rh.addedEntries.Add(1)

	return nil
}

// Close closes the connection to Redis.
func (rh *RedisStream[T]) Close() {
	if rh.client == nil {
		return
	}

	if err := rh.client.Close(); err != nil {
		rh.Telemetry.LogError("failed to close redis client", err)
	}
}

package handler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/FerroO2000/relay/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Names of the balancers accepted by the Kafka handler.
const (
	KafkaBalancerRoundRobin = "round_robin"
	KafkaBalancerHash       = "hash"
	KafkaBalancerLeastBytes = "least_bytes"
)

// Names of the compression codecs accepted by the Kafka handler.
const (
	KafkaCompressionNone   = "none"
	KafkaCompressionGzip   = "gzip"
	KafkaCompressionSnappy = "snappy"
	KafkaCompressionLz4    = "lz4"
	KafkaCompressionZstd   = "zstd"
)

// KafkaConfig structs contains the configuration for the Kafka handler.
type KafkaConfig struct {
	// A list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`

	// Topic used for the messages that do not set one.
	//
	// Default: relay
	Topic string `json:"topic" yaml:"topic" toml:"topic"`

	// The balancer used to distribute messages across partitions,
	// one of round_robin, hash, least_bytes.
	//
	// Default: round_robin
	Balancer string `json:"balancer" yaml:"balancer" toml:"balancer"`

	// Limit on how many attempts will be made to deliver a message.
	//
	// Default: 10
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`

	// WriteBackoffMin sets the smallest amount of time the writer waits before
	// it attempts to write a batch of messages.
	//
	// Default: 100ms
	WriteBackoffMin time.Duration `json:"write_backoff_min" yaml:"write_backoff_min" toml:"write_backoff_min"`

	// WriteBackoffMax sets the maximum amount of time the writer waits before
	// it attempts to write a batch of messages.
	//
	// Default: 1s
	WriteBackoffMax time.Duration `json:"write_backoff_max" yaml:"write_backoff_max" toml:"write_backoff_max"`

	// Limit on how many messages will be buffered before being sent to a
	// partition. It is only used when Async is set: a synchronous write
	// carries a single message, so batches are flushed one message at a time.
	//
	// Default: 100
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`

	// Limit the maximum size of a request in bytes before being sent to
	// a partition.
	//
	// Default: 1048576
	BatchBytes int64 `json:"batch_bytes" yaml:"batch_bytes" toml:"batch_bytes"`

	// Time limit on how often incomplete message batches will be flushed.
	//
	// Default: 1s
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" toml:"batch_timeout"`

	// Timeout for write operation performed by the writer.
	//
	// Default: 10s
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request:
	//
	//  0  fire-and-forget
	//  1  wait for the leader to acknowledge the writes
	//  -1 wait for the full ISR to acknowledge the writes
	//
	// Default: 1
	RequiredAcks int `json:"required_acks" yaml:"required_acks" toml:"required_acks"`

	// Async makes the writes never block and lets the writer fill batches
	// of BatchSize messages. Delivery errors are then only logged
	// and never reach the relay error policy. When it is not set, every item
	// is written and acknowledged before the next one is handled.
	//
	// Default: false
	Async bool `json:"async" yaml:"async" toml:"async"`

	// Compression codec, one of none, gzip, snappy, lz4, zstd.
	//
	// Default: snappy
	Compression string `json:"compression" yaml:"compression" toml:"compression"`

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	//
	// Default: true
	AllowAutoTopicCreation bool `json:"allow_auto_topic_creation" yaml:"allow_auto_topic_creation" toml:"allow_auto_topic_creation"`
}

// DefaultKafkaConfig returns the default Kafka handler config.
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:                []string{"localhost:9092"},
		Topic:                  "relay",
		Balancer:               KafkaBalancerRoundRobin,
		MaxAttempts:            10,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
		BatchSize:              100,
		BatchBytes:             1048576,
		BatchTimeout:           time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           int(kafka.RequireOne),
		Async:                  false,
		Compression:            KafkaCompressionSnappy,
		AllowAutoTopicCreation: true,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	def := DefaultKafkaConfig()

	config.CheckLen(ac, "Brokers", &c.Brokers, def.Brokers)
	config.CheckNotEmpty(ac, "Topic", &c.Topic, def.Topic)
	config.CheckOneOf(ac, "Balancer", &c.Balancer, def.Balancer,
		KafkaBalancerRoundRobin, KafkaBalancerHash, KafkaBalancerLeastBytes)
	config.CheckPositive(ac, "MaxAttempts", &c.MaxAttempts, def.MaxAttempts)
	config.CheckPositive(ac, "WriteBackoffMin", &c.WriteBackoffMin, def.WriteBackoffMin)
	config.CheckPositive(ac, "WriteBackoffMax", &c.WriteBackoffMax, def.WriteBackoffMax)
	config.CheckPositive(ac, "BatchSize", &c.BatchSize, def.BatchSize)
	config.CheckPositive(ac, "BatchBytes", &c.BatchBytes, def.BatchBytes)
	config.CheckPositive(ac, "BatchTimeout", &c.BatchTimeout, def.BatchTimeout)
	config.CheckPositive(ac, "WriteTimeout", &c.WriteTimeout, def.WriteTimeout)
	config.CheckOneOf(ac, "RequiredAcks", &c.RequiredAcks, def.RequiredAcks,
		int(kafka.RequireNone), int(kafka.RequireOne), int(kafka.RequireAll))
	config.CheckOneOf(ac, "Compression", &c.Compression, def.Compression,
		KafkaCompressionNone, KafkaCompressionGzip, KafkaCompressionSnappy,
		KafkaCompressionLz4, KafkaCompressionZstd)
}

func (c *KafkaConfig) balancer() kafka.Balancer {
	switch c.Balancer {
	case KafkaBalancerHash:
		return &kafka.Hash{}
	case KafkaBalancerLeastBytes:
		return &kafka.LeastBytes{}
	default:
		return &kafka.RoundRobin{}
	}
}

func (c *KafkaConfig) compression() kafka.Compression {
	switch c.Compression {
	case KafkaCompressionGzip:
		return kafka.Gzip
	case KafkaCompressionSnappy:
		return kafka.Snappy
	case KafkaCompressionLz4:
		return kafka.Lz4
	case KafkaCompressionZstd:
		return kafka.Zstd
	default:
		return 0
	}
}

// batchSize returns the batch size used by the writer.
// Synchronous writes send one message per call, so a larger batch
// would only be flushed by the BatchTimeout.
func (c *KafkaConfig) batchSize() int {
	if !c.Async {
		return 1
	}
	return c.BatchSize
}

func (c *KafkaConfig) newWriter(tel *relay.Telemetry) *kafka.Writer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               c.balancer(),
		MaxAttempts:            c.MaxAttempts,
		WriteBackoffMin:        c.WriteBackoffMin,
		WriteBackoffMax:        c.WriteBackoffMax,
		BatchSize:              c.batchSize(),
		BatchBytes:             c.BatchBytes,
		BatchTimeout:           c.BatchTimeout,
		WriteTimeout:           c.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(c.RequiredAcks),
		Async:                  c.Async,
		Compression:            c.compression(),
		AllowAutoTopicCreation: c.AllowAutoTopicCreation,
	}

	if c.Async {
		writer.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				tel.LogError("failed to write messages", err, "count", len(messages))
			}
		}
	}

	return writer
}

///////////////
//  HANDLER  //
///////////////

// KafkaEncodeFunc converts an item into a Kafka message.
// If the topic of the message is empty, the configured one is used.
type KafkaEncodeFunc[T any] func(item T) (kafka.Message, error)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ relay.Handler[any] = (*Kafka[any])(nil)

// Kafka is a handler that writes every item to Kafka.
type Kafka[T any] struct {
	relay.HandlerBase

	cfg    *KafkaConfig
	encode KafkaEncodeFunc[T]

	writer messageWriter

	writtenMessages atomic.Int64
}

// NewKafka returns a new Kafka handler.
// If cfg is nil the default configuration is used.
func NewKafka[T any](cfg *KafkaConfig, encode KafkaEncodeFunc[T]) *Kafka[T] {
	if cfg == nil {
		cfg = DefaultKafkaConfig()
	}

	kafkaCfg := *cfg

	return &Kafka[T]{
		cfg:    &kafkaCfg,
		encode: encode,
	}
}

// Init validates the configuration and creates the writer.
func (kh *Kafka[T]) Init(_ context.Context) error {
	config.NewValidator(kh.Telemetry).Validate(kh.cfg)

	if kh.writer == nil {
		kh.writer = kh.cfg.newWriter(kh.Telemetry)
	}

	kh.Telemetry.NewCounter("written_messages", func() int64 { return kh.writtenMessages.Load() })

	return nil
}

// Handle encodes the item and writes it to Kafka.
func (kh *Kafka[T]) Handle(ctx context.Context, item T) error {
	ctx, span := kh.Telemetry.NewTrace(ctx, "write kafka message")
	defer span.End()

	msg, err := kh.encode(item)
	if err != nil {
		return fmt.Errorf("encoding kafka message: %w", err)
	}

	if msg.Topic == "" {
		msg.Topic = kh.cfg.Topic
	}

	// Inject the trace into the headers, keeping the user defined ones
	headerCarrier := telemetry.NewKafkaHeaderCarrier(msg.Headers)
	kh.Telemetry.InjectTrace(ctx, headerCarrier)
	msg.Headers = headerCarrier.Headers()

	span.SetAttributes(attribute.String("topic", msg.Topic))

	if err := kh.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing kafka message: %w", err)
	}

	kh.writtenMessages.Add(1)

	return nil
}

// Close closes the writer.
func (kh *Kafka[T]) Close() {
	if kh.writer == nil {
		return
	}

	if err := kh.writer.Close(); err != nil {
		kh.Telemetry.LogError("failed to close writer", err)
	}
}

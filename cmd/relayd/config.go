package main

import (
	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/handler"
	"github.com/FerroO2000/relay/internal"
	"github.com/FerroO2000/relay/internal/config"
	"github.com/FerroO2000/relay/internal/telemetry"
	"github.com/FerroO2000/relay/source"
	"github.com/FerroO2000/relay/store"
)

// Names of the sinks the file events can be delivered to.
const (
	sinkLog     = "log"
	sinkStore   = "store"
	sinkKafka   = "kafka"
	sinkRedis   = "redis"
	sinkQuestDB = "questdb"
)

// daemonConfig is the configuration file of relayd.
// Every section starts from its defaults, so a file
// only needs the values that differ.
type daemonConfig struct {
	// Sink is one of log, store, kafka, redis, questdb.
	//
	// Default: log
	Sink string `json:"sink" yaml:"sink" toml:"sink"`

	Relay  relay.Config     `json:"relay" yaml:"relay" toml:"relay"`
	Source source.DirConfig `json:"source" yaml:"source" toml:"source"`

	Store   store.Config              `json:"store" yaml:"store" toml:"store"`
	Kafka   handler.KafkaConfig       `json:"kafka" yaml:"kafka" toml:"kafka"`
	Redis   handler.RedisStreamConfig `json:"redis" yaml:"redis" toml:"redis"`
	QuestDB handler.QuestDBConfig     `json:"questdb" yaml:"questdb" toml:"questdb"`

	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
}

func defaultDaemonConfig() *daemonConfig {
	return &daemonConfig{
		Sink: sinkLog,

		Relay:  *relay.DefaultConfig(),
		Source: *source.DefaultDirConfig(),

		Store:   *store.DefaultConfig(),
		Kafka:   *handler.DefaultKafkaConfig(),
		Redis:   *handler.DefaultRedisStreamConfig(),
		QuestDB: *handler.DefaultQuestDBConfig(),

		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Validate checks the sections that are used by the daemon.
func (c *daemonConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckOneOf(ac, "Sink", &c.Sink, sinkLog,
		sinkLog, sinkStore, sinkKafka, sinkRedis, sinkQuestDB)

	c.Relay.Validate(ac)
	c.Source.Validate(ac)
	c.Telemetry.Validate(ac)

	switch c.Sink {
	case sinkStore:
		c.Store.Validate(ac)
	case sinkKafka:
		c.Kafka.Validate(ac)
	case sinkRedis:
		c.Redis.Validate(ac)
	case sinkQuestDB:
		c.QuestDB.Validate(ac)
	}
}

// loadDaemonConfig reads the configuration file, if any, over the defaults
// and validates it. It returns the number of anomalies found.
func loadDaemonConfig(path string) (*daemonConfig, int, error) {
	cfg := defaultDaemonConfig()

	if path != "" {
		if err := config.DecodeFile(path, cfg); err != nil {
			return nil, 0, err
		}
	}

	anomalies := config.NewValidator(internal.NewTelemetry("config", "relayd")).Validate(cfg)

	return cfg, anomalies, nil
}

package relay

import (
	"fmt"

	"github.com/FerroO2000/relay/internal/config"
)

// ErrorPolicy states how the consumer loop reacts to an error returned by the handler.
type ErrorPolicy string

const (
	// ErrorPolicyContinue logs the error, counts it and moves to the next item.
	ErrorPolicyContinue ErrorPolicy = "continue"
	// ErrorPolicyFatal treats the error like a panic: the relay is closed
	// and the remaining items are discarded.
	ErrorPolicyFatal ErrorPolicy = "fatal"
)

// Default configuration values for the relay.
const (
	DefaultName            = "relay"
	DefaultInitialCapacity = 64
	DefaultErrorPolicy     = ErrorPolicyContinue
)

// Config is the configuration of a relay.
type Config struct {
	// Name is the name of the relay.
	// It is used to identify the relay in the telemetry.
	//
	// Default: "relay"
	Name string `json:"name" yaml:"name" toml:"name"`

	// InitialCapacity is the number of slots the queue is created with.
	// The queue grows past it when needed and shrinks back to it when
	// it is mostly empty.
	//
	// Default: 64
	InitialCapacity int `json:"initial_capacity" yaml:"initial_capacity" toml:"initial_capacity"`

	// ErrorPolicy states what happens when the handler returns an error.
	//
	// Default: ErrorPolicyContinue
	ErrorPolicy ErrorPolicy `json:"error_policy" yaml:"error_policy" toml:"error_policy"`
}

// DefaultConfig returns the default configuration for a relay.
func DefaultConfig() *Config {
	return &Config{
		Name:            DefaultName,
		InitialCapacity: DefaultInitialCapacity,
		ErrorPolicy:     DefaultErrorPolicy,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "Name", &c.Name, DefaultName)
	config.CheckPositive(ac, "InitialCapacity", &c.InitialCapacity, DefaultInitialCapacity)
	config.CheckOneOf(ac, "ErrorPolicy", &c.ErrorPolicy, DefaultErrorPolicy, ErrorPolicyContinue, ErrorPolicyFatal)
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (initial capacity %d, error policy %s)", c.Name, c.InitialCapacity, c.ErrorPolicy)
}

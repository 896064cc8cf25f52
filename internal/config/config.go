// Package config contains utility structs/functions
// for validating and loading the configurations across the module.
package config

// Config defines the minimal interface for a configuration
// in order to be validated.
type Config interface {
	// Validate checks the configuration.
	// Invalid values are replaced by their defaults and reported to the collector.
	Validate(ac *AnomalyCollector)
}

package config

import (
	"github.com/FerroO2000/relay/internal"
)

// Validator is an utility struct for validating a configuration.
type Validator struct {
	tel *internal.Telemetry
}

// NewValidator returns a new validator.
func NewValidator(tel *internal.Telemetry) *Validator {
	return &Validator{
		tel: tel,
	}
}

// Validate validates the given configuration, logs every anomaly found
// and returns the number of anomalies.
func (m *Validator) Validate(config Config) int {
	ac := NewAnomalyCollector()
	config.Validate(ac)

	for anomaly := range ac.Iter() {
		m.handleAnomaly(anomaly)
	}

	return ac.Len()
}

func (m *Validator) handleAnomaly(an *Anomaly) {
	m.tel.LogWarn("config anomaly",
		"field", an.Field, "reason", an.Reason,
		"actual", an.Actual, "fallback", an.Fallback)
}

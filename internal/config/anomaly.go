package config

import (
	"fmt"
	"iter"
	"slices"
)

// Anomaly describes a configuration value that was replaced by a fallback.
type Anomaly struct {
	Field    string
	Reason   string
	Actual   any
	Fallback any
}

func (a *Anomaly) String() string {
	return fmt.Sprintf("%s %s (got %v, using %v)", a.Field, a.Reason, a.Actual, a.Fallback)
}

// AnomalyCollector is an utility struct for collecting anomalies.
type AnomalyCollector struct {
	anomalies []*Anomaly
}

// NewAnomalyCollector returns an empty anomaly collector.
func NewAnomalyCollector() *AnomalyCollector {
	return &AnomalyCollector{
		anomalies: []*Anomaly{},
	}
}

func (ac *AnomalyCollector) add(field, reason string, actual, fallback any) {
	ac.anomalies = append(ac.anomalies, &Anomaly{
		Field:    field,
		Reason:   reason,
		Actual:   actual,
		Fallback: fallback,
	})
}

// Len returns the number of collected anomalies.
func (ac *AnomalyCollector) Len() int {
	return len(ac.anomalies)
}

// Iter iterates over the collected anomalies.
func (ac *AnomalyCollector) Iter() iter.Seq[*Anomaly] {
	return slices.Values(ac.anomalies)
}

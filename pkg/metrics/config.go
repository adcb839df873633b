package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "sinkflow" namespace for metrics.
	Namespace string

	// Labels are constant labels added to all metrics.
	Labels prometheus.Labels
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
		Labels:    nil,
	}
}

// DefaultNamespace prefixes every sinkflow metric name.
const DefaultNamespace = "sinkflow"

// FromConfig returns the registry selected by config: nil when disabled,
// DefaultRegistry when no registerer or namespace override is given, and a
// new Registry otherwise.
func FromConfig(config Config) *Registry {
	if !config.Enabled {
		return nil
	}
	if config.Registry == nil && config.Namespace == "" && len(config.Labels) == 0 {
		return DefaultRegistry
	}
	return NewRegistryWithConfig(config)
}

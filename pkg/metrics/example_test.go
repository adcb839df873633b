package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	// Create a separate registry for this example
	testRegistry := prometheus.NewRegistry()
	registry := NewRegistry(testRegistry)

	registry.WriterChunksAccepted.WithLabelValues("audit").Add(3)
	registry.WriterBytesAccepted.WithLabelValues("audit").Add(42)
	registry.WriterQueuedBytes.WithLabelValues("audit").Set(10)

	fmt.Printf("chunks: %.0f\n", testutil.ToFloat64(registry.WriterChunksAccepted.WithLabelValues("audit")))
	fmt.Printf("bytes: %.0f\n", testutil.ToFloat64(registry.WriterBytesAccepted.WithLabelValues("audit")))
	fmt.Printf("queued: %.0f\n", testutil.ToFloat64(registry.WriterQueuedBytes.WithLabelValues("audit")))

	// Output:
	// chunks: 3
	// bytes: 42
	// queued: 10
}

// Example_configuration demonstrates different metrics configurations.
func Example_configuration() {
	// Default configuration
	defaultConfig := DefaultConfig()
	fmt.Printf("Default enabled: %v\n", defaultConfig.Enabled)
	fmt.Printf("Default namespace: %s\n", defaultConfig.Namespace)

	// Disabled configuration yields no registry
	fmt.Printf("Disabled registry is nil: %v\n", FromConfig(Config{Enabled: false}) == nil)

	// Output:
	// Default enabled: true
	// Default namespace: sinkflow
	// Disabled registry is nil: true
}

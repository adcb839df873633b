// Package metrics provides Prometheus instrumentation for sinkflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for sinkflow components.
type Registry struct {
	// Writer Metrics
	WriterChunksAccepted *prometheus.CounterVec
	WriterBytesAccepted  *prometheus.CounterVec
	WriterDispatches     *prometheus.CounterVec
	WriterBytesWritten   *prometheus.CounterVec
	WriterSinkDuration   *prometheus.HistogramVec
	WriterQueuedBytes    *prometheus.GaugeVec
	WriterBackpressure   *prometheus.CounterVec
	WriterDrainEvents    *prometheus.CounterVec
	WriterErrors         *prometheus.CounterVec
	WriterLifecycle      *prometheus.CounterVec

	// File Sink Metrics
	FileSinkOpens        *prometheus.CounterVec
	FileSinkOpenDuration *prometheus.HistogramVec
	FileSinkCloses       *prometheus.CounterVec

	// Cork Window Metrics
	CorkWindowFlushes *prometheus.CounterVec

	// Throttle Metrics
	ThrottleDelay  *prometheus.HistogramVec
	ThrottleTokens *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by sinkflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Enabled: true, Registry: reg})
}

// NewRegistryWithConfig creates a metrics registry honouring the namespace
// and constant labels of config.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := config.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)
	labels := config.Labels

	return &Registry{
		// Writer Metrics
		WriterChunksAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "chunks_accepted_total",
				Help:        "Total number of chunks accepted by writers",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterBytesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "bytes_accepted_total",
				Help:        "Total bytes accepted by writers",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "dispatches_total",
				Help:        "Total number of sink operations issued, by kind (single, batch)",
				ConstLabels: labels,
			},
			[]string{"writer_name", "kind"},
		),

		WriterBytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "bytes_written_total",
				Help:        "Total bytes reported written by sinks",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterSinkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "sink_duration_seconds",
				Help:        "Time from issuing a sink operation to its completion",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"writer_name", "kind"},
		),

		WriterQueuedBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "queued_bytes",
				Help:        "Accepted bytes not yet reported written",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterBackpressure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "backpressure_total",
				Help:        "Total number of writes that asked the producer to pause",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterDrainEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "drain_total",
				Help:        "Total number of drain signals emitted",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		WriterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "errors_total",
				Help:        "Total number of errors raised, by kind",
				ConstLabels: labels,
			},
			[]string{"writer_name", "kind"},
		),

		WriterLifecycle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writer",
				Name:        "lifecycle_events_total",
				Help:        "Total number of lifecycle transitions (finish, destroy, close)",
				ConstLabels: labels,
			},
			[]string{"writer_name", "event"},
		),

		// File Sink Metrics
		FileSinkOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "filesink",
				Name:        "opens_total",
				Help:        "Total number of file open attempts, by status",
				ConstLabels: labels,
			},
			[]string{"writer_name", "status"},
		),

		FileSinkOpenDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "filesink",
				Name:        "open_duration_seconds",
				Help:        "Time spent opening the target file",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		FileSinkCloses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "filesink",
				Name:        "closes_total",
				Help:        "Total number of file closes, by status",
				ConstLabels: labels,
			},
			[]string{"writer_name", "status"},
		),

		// Cork Window Metrics
		CorkWindowFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "corkwindow",
				Name:        "flushes_total",
				Help:        "Total number of cork windows closed, by trigger (schedule, manual, stop)",
				ConstLabels: labels,
			},
			[]string{"writer_name", "trigger"},
		),

		// Throttle Metrics
		ThrottleDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "throttle",
				Name:        "delay_seconds",
				Help:        "Time sink operations were held back by the byte rate limit",
				Buckets:     []float64{0, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),

		ThrottleTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "throttle",
				Name:        "tokens",
				Help:        "Byte tokens available after the last reservation; negative while in debt",
				ConstLabels: labels,
			},
			[]string{"writer_name"},
		),
	}
}

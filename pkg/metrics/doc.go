// Package metrics provides Prometheus instrumentation for sinkflow components.
//
// # Overview
//
// The metrics package instruments:
//   - BufferedWriter activity (chunks and bytes accepted, sink dispatches, bytes written)
//   - Backpressure (queued bytes, writes that asked the producer to pause, drain signals)
//   - Lifecycle transitions and errors by kind
//   - FileSink open and close sequencing
//   - Cork window flushes
//
// # Quick Start
//
// Pass a Registry through the writer configuration:
//
//	config := writer.DefaultConfig()
//	config.Name = "audit_log"
//	config.Metrics = metrics.DefaultRegistry
//
//	w, _ := writer.NewWithConfig(sink, config)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	reg := prometheus.NewRegistry()
//	config.Metrics = metrics.NewRegistry(reg)
//
// # Available Metrics
//
//   - sinkflow_writer_chunks_accepted_total{writer_name}
//   - sinkflow_writer_bytes_accepted_total{writer_name}
//   - sinkflow_writer_dispatches_total{writer_name,kind}
//   - sinkflow_writer_bytes_written_total{writer_name}
//   - sinkflow_writer_sink_duration_seconds{writer_name,kind}
//   - sinkflow_writer_queued_bytes{writer_name}
//   - sinkflow_writer_backpressure_total{writer_name}
//   - sinkflow_writer_drain_total{writer_name}
//   - sinkflow_writer_errors_total{writer_name,kind}
//   - sinkflow_writer_lifecycle_events_total{writer_name,event}
//   - sinkflow_filesink_opens_total{writer_name,status}
//   - sinkflow_filesink_open_duration_seconds{writer_name}
//   - sinkflow_filesink_closes_total{writer_name,status}
//   - sinkflow_corkwindow_flushes_total{writer_name,trigger}
//
// A nil *Registry disables instrumentation; components check for nil before
// recording.
package metrics

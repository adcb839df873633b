/*
Package sinkflow provides buffered, backpressure-aware writers for Go
applications that stream data into files, Redis and other sinks.

Streaming (pkg/streaming):
  - writer: BufferedWriter with highWaterMark backpressure, cork/uncork
    batching, end/destroy lifecycle and signals (drain, finish, close, error)
  - filesink: BufferedWriter backed by a file that opens asynchronously
  - redissink: BufferedWriter appending to a Redis key
  - throttle: byte rate limit for any writer sink

Scheduling (pkg/scheduling):
  - corkwindow: batch writes into cron-scheduled windows

Metrics (pkg/metrics):
  - Prometheus instrumentation for writers, file sinks, throttles and cork windows

Example usage:

	import (
		"github.com/vnykmshr/sinkflow/pkg/streaming/filesink"
		"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
	)

	s, _ := filesink.New("events.log")
	s.On(writer.SignalFinish, func(writer.Event) { log.Println("flushed") })

	if !s.Write(data, nil) {
		// wait for writer.SignalDrain before writing more
	}
	s.End(nil)
*/
package sinkflow

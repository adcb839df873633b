/*
Package streaming contains buffered writers and the sinks they write to.

This package groups four components:

  - writer: BufferedWriter queues chunks for a sink, keeps one sink operation
    in flight and reports backpressure through Write's return value and the
    drain signal
  - filesink: a BufferedWriter whose sink is a file opened asynchronously;
    writes issued before the open completes are applied in order
  - redissink: a BufferedWriter appending chunks to a Redis string
  - throttle: a sink decorator limiting bytes per second

Basic usage:

	w, err := writer.New(writer.FromWriter(conn))
	if err != nil {
		return err
	}
	w.On(writer.SignalDrain, func(writer.Event) { resume() })

	if !w.Write(payload, nil) {
		pause()
	}
	w.End(func(err error) { log.Println("done:", err) })

Callbacks, listeners and sink operations of one writer never run
concurrently with each other.
*/
package streaming

/*
Package writer provides a buffered, backpressure-aware sequential writer.

A BufferedWriter accepts chunks from a producer, queues them and forwards
them to a Sink one operation at a time. Write reports whether the producer
may continue; once it returns false the producer should wait for
SignalDrain.

# Quick Start

	sink := writer.FromWriter(file)
	w, err := writer.New(sink)
	if err != nil {
		return err
	}

	w.On(writer.SignalError, func(ev writer.Event) {
		log.Printf("write failed: %v", ev.Err)
	})

	w.Write([]byte("hello "), nil)
	w.WriteString("world", "", func(err error) {
		// called once the chunk reached the sink
	})
	w.End(nil)
	<-w.Done()

# Sinks

A Sink implements WriteOne. Sinks that can write several blocks in one
operation also implement BatchSink, and sinks that hold resources implement
Finalizer. SinkFuncs adapts plain functions:

	sink := writer.SinkFuncs{
		WriteOneFunc: func(block []byte, done writer.CompletionFunc) {
			go func() {
				n, err := conn.Write(block)
				done(n, err)
			}()
		},
	}

The writer never issues an operation before the previous one completed.
Config.Wrap decorates the sink at construction; package throttle uses it to
limit bytes per second.

# Backpressure

HighWaterMark bounds the bytes accepted but not yet written:

	config := writer.DefaultConfig()
	config.HighWaterMark = 64 * 1024

	w, _ := writer.NewWithConfig(sink, config)
	if !w.Write(data, nil) {
		// pause until drain
	}

NewIOWriter wraps a BufferedWriter as an io.WriteCloser that blocks while
the writer asks for a pause.

# Corking

Cork buffers writes without dispatching them; the matching Uncork sends
everything buffered as one batch:

	w.Cork()
	w.Write(header, nil)
	w.Write(body, nil)
	w.Uncork()

# Lifecycle

End flushes everything queued, finalizes the sink and emits SignalFinish.
Destroy stops the writer immediately: queued chunks fail, the sink is
finalized with the given error and SignalClose follows. With AutoDestroy
(the default) sink failures and a finished stream both lead to Destroy.

# Thread Safety

BufferedWriter is safe for concurrent use. Callbacks and listeners run on a
per-writer goroutine in the order they were produced.
*/
package writer

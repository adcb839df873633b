package writer

import "sync"

// Signal names a lifecycle notification emitted by a writer.
type Signal string

const (
	// SignalOpen is emitted by sinks that open their target asynchronously.
	// The event value carries the sink-specific handle, such as a file descriptor.
	SignalOpen Signal = "open"
	// SignalReady follows SignalOpen once the sink accepts writes.
	SignalReady Signal = "ready"
	// SignalDrain is emitted once queued bytes fall below the high-water mark
	// after a write returned false.
	SignalDrain Signal = "drain"
	// SignalFinish is emitted after End once all data was written and finalized.
	SignalFinish Signal = "finish"
	// SignalClose is emitted at most once when teardown completes.
	SignalClose Signal = "close"
	// SignalError carries a failure in Event.Err.
	SignalError Signal = "error"
)

// Event is delivered to listeners.
type Event struct {
	Signal Signal
	Err    error
	Value  interface{}
}

// Listener receives events. Listeners run on the writer's callback goroutine
// and must not block for long.
type Listener func(Event)

type listener struct {
	fn   Listener
	once bool
}

type emitter struct {
	mu        sync.Mutex
	listeners map[Signal][]*listener
}

func (e *emitter) add(sig Signal, fn Listener, once bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[Signal][]*listener)
	}
	e.listeners[sig] = append(e.listeners[sig], &listener{fn: fn, once: once})
}

func (e *emitter) count(sig Signal) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[sig])
}

// emit delivers ev to the listeners registered for its signal and reports
// whether any were registered.
func (e *emitter) emit(ev Event) bool {
	e.mu.Lock()
	current := e.listeners[ev.Signal]
	if len(current) == 0 {
		e.mu.Unlock()
		return false
	}
	snapshot := make([]*listener, len(current))
	copy(snapshot, current)

	kept := current[:0]
	for _, l := range current {
		if !l.once {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(current); i++ {
		current[i] = nil
	}
	e.listeners[ev.Signal] = kept
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
	return true
}

package writer

import (
	"sync"
	"testing"

	"github.com/vnykmshr/sinkflow/internal/testutil"
)

func newTestWriter(t *testing.T, sink Sink, configure func(*Config)) *BufferedWriter {
	t.Helper()
	config := DefaultConfig()
	if configure != nil {
		configure(&config)
	}
	w, err := NewWithConfig(sink, config)
	testutil.AssertNoError(t, err)
	return w
}

// recorder captures the signals emitted by a writer.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(w *BufferedWriter, signals ...Signal) *recorder {
	r := &recorder{}
	for _, sig := range signals {
		w.On(sig, func(ev Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) count(sig Signal) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Signal == sig {
			n++
		}
	}
	return n
}

func (r *recorder) errs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, ev := range r.events {
		if ev.Signal == SignalError {
			out = append(out, ev.Err)
		}
	}
	return out
}

func (r *recorder) order() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Signal
	}
	return out
}

// results collects callback results in invocation order.
type results struct {
	mu   sync.Mutex
	errs []error
	ids  []int
}

func (r *results) cb(id int) Callback {
	return func(err error) {
		r.mu.Lock()
		r.ids = append(r.ids, id)
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
}

func (r *results) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *results) snapshot() ([]int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...), append([]error(nil), r.errs...)
}

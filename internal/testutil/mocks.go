package testutil

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrSimulated is returned by MockSink when configured to fail on the nth call.
var ErrSimulated = errors.New("simulated error")

// MockClock is a clock with controllable time for rate limiter tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// SinkCall records one operation issued to a MockSink.
type SinkCall struct {
	// Kind is "one" for single-block writes and "many" for multi-block writes.
	Kind   string
	Blocks [][]byte
}

// Size returns the total number of bytes in the call.
func (c SinkCall) Size() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b)
	}
	return n
}

// MockSink is a test sink that records every operation and can simulate
// errors, short writes and delayed completion.
type MockSink struct {
	mu          sync.Mutex
	buf         bytes.Buffer
	calls       []SinkCall
	inFlight    int
	overlaps    int
	hold        bool
	held        []func()
	maxWrite    int
	errorOnNth  int
	err         error
	finalizes   int
	finalizeErr error
	finalizeArg []error
}

// NewMockSink creates a new MockSink that completes operations immediately.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// WriteOne records a single-block write.
func (m *MockSink) WriteOne(block []byte, done func(n int, err error)) {
	m.record("one", [][]byte{block}, done)
}

// WriteMany records a multi-block write.
func (m *MockSink) WriteMany(blocks [][]byte, done func(n int, err error)) {
	m.record("many", blocks, done)
}

func (m *MockSink) record(kind string, blocks [][]byte, done func(n int, err error)) {
	m.mu.Lock()
	copied := make([][]byte, len(blocks))
	for i, b := range blocks {
		copied[i] = append([]byte(nil), b...)
	}
	m.calls = append(m.calls, SinkCall{Kind: kind, Blocks: copied})
	m.inFlight++
	if m.inFlight > 1 {
		m.overlaps++
	}

	var n int
	var err error
	switch {
	case m.err != nil && m.errorOnNth == 0:
		err = m.err
	case m.errorOnNth > 0 && len(m.calls) == m.errorOnNth:
		err = m.err
		if err == nil {
			err = ErrSimulated
		}
	default:
		for _, b := range copied {
			if m.maxWrite > 0 && n+len(b) > m.maxWrite {
				b = b[:m.maxWrite-n]
			}
			m.buf.Write(b)
			n += len(b)
			if m.maxWrite > 0 && n >= m.maxWrite {
				break
			}
		}
	}

	complete := func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
		done(n, err)
	}
	if m.hold {
		m.held = append(m.held, complete)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	complete()
}

// Finalize records a finalize call and completes it with err merged with the
// configured finalize error.
func (m *MockSink) Finalize(err error, done func(err error)) {
	m.mu.Lock()
	m.finalizes++
	m.finalizeArg = append(m.finalizeArg, err)
	if err == nil {
		err = m.finalizeErr
	}
	m.mu.Unlock()
	done(err)
}

// Hold makes the sink keep completions until Release is called.
func (m *MockSink) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = true
}

// Release completes the oldest held operation. It reports whether one was held.
func (m *MockSink) Release() bool {
	m.mu.Lock()
	if len(m.held) == 0 {
		m.mu.Unlock()
		return false
	}
	next := m.held[0]
	m.held = m.held[1:]
	m.mu.Unlock()
	next()
	return true
}

// ReleaseAll stops holding and completes every held operation.
func (m *MockSink) ReleaseAll() {
	m.mu.Lock()
	m.hold = false
	held := m.held
	m.held = nil
	m.mu.Unlock()
	for _, complete := range held {
		complete()
	}
}

// HeldCount returns the number of operations waiting for Release.
func (m *MockSink) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// SetMaxWrite caps the bytes each operation reports as written. Zero removes the cap.
func (m *MockSink) SetMaxWrite(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxWrite = n
}

// SetErrorOnNth configures the sink to fail the nth operation with err, or
// ErrSimulated when err is nil.
func (m *MockSink) SetErrorOnNth(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnNth = n
	m.err = err
}

// SetAlwaysError configures the sink to fail every operation with err.
func (m *MockSink) SetAlwaysError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorOnNth = 0
	m.err = err
}

// SetFinalizeError configures the error a clean finalize reports.
func (m *MockSink) SetFinalizeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeErr = err
}

// String returns the bytes written so far.
func (m *MockSink) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

// Len returns the number of bytes written so far.
func (m *MockSink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len()
}

// Calls returns a copy of the recorded operations.
func (m *MockSink) Calls() []SinkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SinkCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of write operations issued.
func (m *MockSink) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Overlaps returns how many operations were issued while another was in flight.
func (m *MockSink) Overlaps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlaps
}

// FinalizeCount returns the number of Finalize calls.
func (m *MockSink) FinalizeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizes
}

// FinalizeArgs returns the errors Finalize was called with.
func (m *MockSink) FinalizeArgs() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.finalizeArg...)
}

// SingleBlock hides WriteMany so the sink only supports single-block writes.
func (m *MockSink) SingleBlock() *SingleBlockSink {
	return &SingleBlockSink{m: m}
}

// SingleBlockSink exposes a MockSink without multi-block writes.
type SingleBlockSink struct {
	m *MockSink
}

// WriteOne forwards to the wrapped MockSink.
func (s *SingleBlockSink) WriteOne(block []byte, done func(n int, err error)) {
	s.m.WriteOne(block, done)
}

// Finalize forwards to the wrapped MockSink.
func (s *SingleBlockSink) Finalize(err error, done func(err error)) {
	s.m.Finalize(err, done)
}

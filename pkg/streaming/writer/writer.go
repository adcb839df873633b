package writer

import (
	"sync"

	"go.uber.org/zap"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/encoding"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
)

// DefaultHighWaterMark is the queued-byte threshold used when none is configured.
const DefaultHighWaterMark = 16 * 1024

// Callback receives the completion result of a write, end or destroy call.
type Callback func(err error)

// Writer is the producer side of a BufferedWriter. Sinks that embed a
// BufferedWriter satisfy it too.
type Writer interface {
	Write(p []byte, cb Callback) bool
	WriteString(s string, enc string, cb Callback) (bool, error)
	End(cb Callback)
	Destroy(err error, cb Callback) error

	// Cork and Uncork nest; Corked reports the current depth.
	Cork()
	Uncork()
	Corked() int

	On(sig Signal, fn Listener)
	Once(sig Signal, fn Listener)
	Done() <-chan struct{}

	NeedDrain() bool
	Ended() bool
	Destroyed() bool
	Err() error
}

var _ Writer = (*BufferedWriter)(nil)

// Config holds configuration for a BufferedWriter.
type Config struct {
	// DefaultEncoding converts string chunks written without an explicit
	// encoding. Defaults to utf8.
	DefaultEncoding string

	// HighWaterMark is the number of queued bytes at which Write starts
	// returning false. Zero selects DefaultHighWaterMark.
	HighWaterMark int

	// EmitClose controls whether SignalClose is emitted after teardown.
	EmitClose bool

	// AutoDestroy destroys the writer on sink failures and after finish.
	AutoDestroy bool

	// Name identifies the writer in logs and metrics. Sinks built on the
	// writer pick their own default; otherwise "default" is used.
	Name string

	// Logger receives lifecycle and error logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics records writer activity. Nil disables metrics.
	Metrics *metrics.Registry

	// OnError is called for every error signal, before listeners.
	OnError func(error)

	// Wrap decorates the sink before the writer uses it, for example with
	// a byte rate limit.
	Wrap func(Sink) Sink
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultEncoding: string(encoding.Default),
		HighWaterMark:   DefaultHighWaterMark,
		EmitClose:       true,
		AutoDestroy:     true,
	}
}

// Stats holds writer statistics.
type Stats struct {
	ChunksAccepted  int64
	BytesAccepted   int64
	BytesWritten    int64
	Dispatches      int64
	BatchDispatches int64
	DrainEvents     int64
	Errors          int64
}

// BufferedWriter queues chunks for a Sink, keeps at most one sink operation
// in flight and tells the producer when to pause and resume.
//
// All callbacks, listeners and sink operations run on a per-writer serial
// executor; they are never invoked synchronously from the calling goroutine.
type BufferedWriter struct {
	config  Config
	encoder encoding.Encoding
	hwm     int
	logger  *zap.Logger
	metrics *metrics.Registry

	sink      Sink
	batchSink BatchSink
	finalizer Finalizer

	exec    executor
	signals emitter

	mu         sync.Mutex
	length     int
	pending    queue
	corkedQ    queue
	corked     int
	writing    bool
	needDrain  bool
	ended      bool
	finished   bool
	destroyed  bool
	finalizing bool
	tornDown   bool
	closed     bool
	err        error
	endCbs     []Callback
	destroyReq *destroyRequest
	errorHooks []func(error)
	stats      Stats

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a BufferedWriter for sink with the default configuration.
func New(sink Sink) (*BufferedWriter, error) {
	return NewWithConfig(sink, DefaultConfig())
}

// NewWithConfig creates a BufferedWriter for sink with custom configuration.
// Empty or zero fields fall back to their defaults.
func NewWithConfig(sink Sink, config Config) (*BufferedWriter, error) {
	if err := validation.ValidateNotNil("writer", "sink", sink); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("writer", "highWaterMark", config.HighWaterMark); err != nil {
		return nil, err
	}
	if config.Wrap != nil {
		sink = config.Wrap(sink)
		if err := validation.ValidateNotNil("writer", "wrapped sink", sink); err != nil {
			return nil, err
		}
	}

	if config.HighWaterMark == 0 {
		config.HighWaterMark = DefaultHighWaterMark
	}
	if config.DefaultEncoding == "" {
		config.DefaultEncoding = string(encoding.Default)
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	enc, err := encoding.Normalize(config.DefaultEncoding)
	if err != nil {
		return nil, err
	}

	w := &BufferedWriter{
		config:  config,
		encoder: enc,
		hwm:     config.HighWaterMark,
		logger:  config.Logger.With(zap.String("writer", config.Name)),
		metrics: config.Metrics,
		sink:    sink,
		done:    make(chan struct{}),
	}
	w.batchSink, w.finalizer = capabilities(sink)
	return w, nil
}

// Write queues p for the sink. The writer keeps its own copy of p. The
// result reports whether the producer may keep writing; false means it
// should wait for SignalDrain. Writes after End or Destroy return false and
// fail cb asynchronously.
func (w *BufferedWriter) Write(p []byte, cb Callback) bool {
	data := make([]byte, len(p))
	copy(data, p)
	return w.write(data, cb)
}

// WriteString converts s with the named encoding, or the default encoding
// when enc is empty, and queues it. Unknown encodings fail synchronously.
func (w *BufferedWriter) WriteString(s string, enc string, cb Callback) (bool, error) {
	data, err := w.encode(s, enc)
	if err != nil {
		return false, err
	}
	return w.write(data, cb), nil
}

// WriteChunk queues a []byte or string chunk. Any other type fails
// synchronously with an invalid-argument-type error.
func (w *BufferedWriter) WriteChunk(chunk interface{}, enc string, cb Callback) (bool, error) {
	data, err := w.toBytes(chunk, enc)
	if err != nil {
		return false, err
	}
	return w.write(data, cb), nil
}

func (w *BufferedWriter) toBytes(chunk interface{}, enc string) ([]byte, error) {
	if enc != "" {
		if _, err := encoding.Normalize(enc); err != nil {
			return nil, err
		}
	}
	switch c := chunk.(type) {
	case []byte:
		data := make([]byte, len(c))
		copy(data, c)
		return data, nil
	case string:
		return w.encode(c, enc)
	default:
		return nil, sferrors.InvalidArgType("chunk", "of type string or []byte", chunk)
	}
}

func (w *BufferedWriter) encode(s string, enc string) ([]byte, error) {
	if enc == "" {
		return w.encoder.Encode(s)
	}
	return encoding.Encode(s, enc)
}

func (w *BufferedWriter) write(data []byte, cb Callback) bool {
	w.mu.Lock()
	var err error
	switch {
	case w.ended:
		err = sferrors.WriteAfterEnd()
	case w.destroyed:
		err = sferrors.Destroyed("write")
	}
	if err != nil {
		w.mu.Unlock()
		w.exec.post(func() {
			if cb != nil {
				cb(err)
			}
			w.emitError(err)
		})
		return false
	}

	size := len(data)
	w.length += size
	w.stats.ChunksAccepted++
	w.stats.BytesAccepted += int64(size)
	c := chunk{data: data, cb: cb}

	var next *batch
	switch {
	case w.corked > 0:
		w.corkedQ.push(c)
	case w.writing:
		w.pending.push(c)
	default:
		w.pending.push(c)
		next = w.takePending()
	}

	ok := w.length < w.hwm
	if !ok {
		w.needDrain = true
	}
	queued := w.length
	w.mu.Unlock()

	w.recordAccepted(size, queued, ok)
	if next != nil {
		w.exec.post(func() { w.issue(next) })
	}
	return ok
}

// Cork buffers subsequent writes until a matching Uncork. Calls nest.
func (w *BufferedWriter) Cork() {
	w.mu.Lock()
	w.corked++
	w.mu.Unlock()
}

// Uncork decrements the cork depth. When it reaches zero the buffered
// chunks are dispatched as one batch. Uncork on an uncorked writer is a no-op.
func (w *BufferedWriter) Uncork() {
	w.mu.Lock()
	if w.corked == 0 {
		w.mu.Unlock()
		return
	}
	w.corked--
	var next *batch
	if w.corked == 0 {
		next = w.flushCorked()
	}
	w.mu.Unlock()

	if next != nil {
		w.exec.post(func() { w.issue(next) })
	}
}

// flushCorked moves the corked queue behind pending and returns a batch to
// dispatch when nothing is in flight. Must hold w.mu.
func (w *BufferedWriter) flushCorked() *batch {
	if w.corkedQ.empty() || w.destroyed {
		return nil
	}
	w.pending.append(&w.corkedQ)
	w.corkedQ = queue{}
	if w.writing {
		return nil
	}
	return w.takePending()
}

// End signals that no more data will be written. Buffered and corked chunks
// are still written, then the sink is finalized and SignalFinish emitted. cb
// is called once when the writer finishes or fails.
func (w *BufferedWriter) End(cb Callback) {
	w.mu.Lock()
	switch {
	case w.destroyed && !w.finished:
		w.mu.Unlock()
		if cb != nil {
			w.exec.post(func() { cb(sferrors.Destroyed("end")) })
		}
		return
	case w.ended:
		if w.finished {
			w.mu.Unlock()
			if cb != nil {
				w.exec.post(func() { cb(nil) })
			}
			return
		}
		if cb != nil {
			w.endCbs = append(w.endCbs, cb)
		}
		w.mu.Unlock()
		return
	}

	w.ended = true
	if cb != nil {
		w.endCbs = append(w.endCbs, cb)
	}
	w.corked = 0
	next := w.flushCorked()
	finalize := next == nil && w.readyToFinalize()
	w.mu.Unlock()

	w.logger.Debug("writer ended")
	w.recordLifecycle("end")

	switch {
	case next != nil:
		w.exec.post(func() { w.issue(next) })
	case finalize:
		w.exec.post(w.finalize)
	}
}

// EndChunk writes chunk and then ends the writer.
func (w *BufferedWriter) EndChunk(chunk interface{}, enc string, cb Callback) error {
	if chunk != nil {
		if _, err := w.WriteChunk(chunk, enc, nil); err != nil {
			return err
		}
	}
	w.End(cb)
	return nil
}

// readyToFinalize reports whether the end-of-stream finalize should start
// now and marks it started. Must hold w.mu.
func (w *BufferedWriter) readyToFinalize() bool {
	if !w.ended || w.writing || w.finalizing || w.destroyed {
		return false
	}
	if !w.pending.empty() || !w.corkedQ.empty() {
		return false
	}
	w.finalizing = true
	return true
}

// Destroy tears the writer down immediately. Queued chunks fail with a
// destroyed error; an in-flight sink operation is allowed to complete before
// the sink is finalized with err. cb receives the teardown result; without
// cb a teardown error is raised as an error signal. Destroying twice
// returns a destroyed error.
func (w *BufferedWriter) Destroy(err error, cb Callback) error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return sferrors.Destroyed("destroy")
	}
	w.destroyed = true

	dropped := append(w.pending.chunks, w.corkedQ.chunks...)
	w.length -= w.pending.size + w.corkedQ.size
	w.pending = queue{}
	w.corkedQ = queue{}

	req := &destroyRequest{err: err, cb: cb}
	wait := w.writing || (w.finalizing && !w.tornDown)
	if wait {
		w.destroyReq = req
	}
	queued := w.length
	w.mu.Unlock()

	w.logger.Debug("writer destroyed", zap.Error(err), zap.Int("dropped_chunks", len(dropped)))
	w.recordLifecycle("destroy")
	w.recordQueued(queued)

	w.exec.post(func() {
		for _, c := range dropped {
			if c.cb != nil {
				c.cb(sferrors.Destroyed("write"))
			}
		}
	})
	if !wait {
		w.exec.post(func() { w.teardown(req) })
	}
	return nil
}

// On registers fn for every occurrence of sig.
func (w *BufferedWriter) On(sig Signal, fn Listener) {
	w.signals.add(sig, fn, false)
}

// Once registers fn for the next occurrence of sig.
func (w *BufferedWriter) Once(sig Signal, fn Listener) {
	w.signals.add(sig, fn, true)
}

// Emit delivers a signal to listeners on the writer's callback goroutine.
// It is used by sinks that report their own lifecycle, such as SignalOpen.
func (w *BufferedWriter) Emit(sig Signal, value interface{}) {
	w.exec.post(func() {
		w.signals.emit(Event{Signal: sig, Value: value})
	})
}

// Fail raises err through the writer's error handling: with AutoDestroy the
// writer is destroyed, otherwise an error signal is emitted.
func (w *BufferedWriter) Fail(err error) {
	w.exec.post(func() { w.escalate(err) })
}

// AddErrorHook registers fn to run for every error signal ahead of
// listeners. Hooks do not count as error handlers.
func (w *BufferedWriter) AddErrorHook(fn func(error)) {
	w.mu.Lock()
	w.errorHooks = append(w.errorHooks, fn)
	w.mu.Unlock()
}

// Done returns a channel that is closed once the writer has finished or
// been torn down.
func (w *BufferedWriter) Done() <-chan struct{} {
	return w.done
}

// WritableLength returns the number of accepted bytes not yet written.
func (w *BufferedWriter) WritableLength() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.length
}

// NeedDrain reports whether the producer was told to pause.
func (w *BufferedWriter) NeedDrain() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.needDrain
}

// Corked returns the current cork depth.
func (w *BufferedWriter) Corked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.corked
}

// Ended reports whether End was called.
func (w *BufferedWriter) Ended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ended
}

// Finished reports whether the writer finished after End.
func (w *BufferedWriter) Finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

// Destroyed reports whether Destroy was called.
func (w *BufferedWriter) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// Writing reports whether a sink operation is in flight.
func (w *BufferedWriter) Writing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writing
}

// Err returns the first error raised as an error signal, if any.
func (w *BufferedWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// HighWaterMark returns the configured backpressure threshold.
func (w *BufferedWriter) HighWaterMark() int {
	return w.hwm
}

// Name returns the configured writer name.
func (w *BufferedWriter) Name() string {
	return w.config.Name
}

// Stats returns a snapshot of writer statistics.
func (w *BufferedWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

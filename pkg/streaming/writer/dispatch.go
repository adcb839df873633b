package writer

import (
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

type chunk struct {
	data []byte
	cb   Callback
}

type queue struct {
	chunks []chunk
	size   int
}

func (q *queue) push(c chunk) {
	q.chunks = append(q.chunks, c)
	q.size += len(c.data)
}

func (q *queue) append(other *queue) {
	q.chunks = append(q.chunks, other.chunks...)
	q.size += other.size
}

func (q *queue) empty() bool {
	return len(q.chunks) == 0
}

// batch is the unit of one dispatch. written tracks progress across short
// writes; the batch stays in flight until every byte was reported written.
type batch struct {
	chunks  []chunk
	size    int
	written int
}

// remaining returns the unwritten part of the batch as blocks.
func (b *batch) remaining() [][]byte {
	skip := b.written
	blocks := make([][]byte, 0, len(b.chunks))
	for _, c := range b.chunks {
		if skip >= len(c.data) {
			skip -= len(c.data)
			continue
		}
		blocks = append(blocks, c.data[skip:])
		skip = 0
	}
	return blocks
}

type destroyRequest struct {
	err error
	cb  Callback
}

// takePending hands the pending queue to a new batch and marks the writer
// as writing. Must hold w.mu.
func (w *BufferedWriter) takePending() *batch {
	b := &batch{chunks: w.pending.chunks, size: w.pending.size}
	w.pending = queue{}
	w.writing = true
	return b
}

// issue starts one sink operation for the remaining bytes of b. It runs on
// the executor; the sink's completion is posted back to it.
func (w *BufferedWriter) issue(b *batch) {
	blocks := b.remaining()
	kind := "single"
	if len(blocks) > 1 && w.batchSink != nil {
		kind = "batch"
	}

	w.mu.Lock()
	w.stats.Dispatches++
	if kind == "batch" {
		w.stats.BatchDispatches++
	}
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.WriterDispatches.WithLabelValues(w.config.Name, kind).Inc()
	}

	start := time.Now()
	var called atomic.Bool
	done := func(n int, err error) {
		if !called.CompareAndSwap(false, true) {
			w.logger.Warn("sink completed an operation twice", zap.String("kind", kind))
			return
		}
		w.exec.post(func() { w.complete(b, kind, start, n, err) })
	}

	switch {
	case kind == "batch":
		w.batchSink.WriteMany(blocks, done)
	case len(blocks) == 1:
		w.sink.WriteOne(blocks[0], done)
	default:
		w.sink.WriteOne(concat(blocks), done)
	}
}

func concat(blocks [][]byte) []byte {
	size := 0
	for _, b := range blocks {
		size += len(b)
	}
	out := make([]byte, 0, size)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// complete handles the end of a sink operation for b.
func (w *BufferedWriter) complete(b *batch, kind string, start time.Time, n int, err error) {
	if w.metrics != nil {
		w.metrics.WriterSinkDuration.WithLabelValues(w.config.Name, kind).Observe(time.Since(start).Seconds())
	}

	left := b.size - b.written
	if n < 0 {
		n = 0
	}
	if n > left {
		n = left
	}
	if err == nil && n < left {
		if n == 0 {
			err = io.ErrShortWrite
		} else {
			b.written += n
			w.recordWritten(n)
			w.logger.Debug("short write, dispatching remainder",
				zap.Int("written", n), zap.Int("remaining", left-n))
			w.issue(b)
			return
		}
	}
	if err == nil {
		w.recordWritten(n)
	}

	w.mu.Lock()
	w.length -= b.size
	queued := w.length
	w.mu.Unlock()
	w.recordQueued(queued)

	for _, c := range b.chunks {
		if c.cb != nil {
			c.cb(err)
		}
	}
	if err != nil {
		w.escalate(err)
	}
	w.afterWrite()
}

// afterWrite continues with the next batch, or settles the writer once the
// pending queue is empty.
func (w *BufferedWriter) afterWrite() {
	w.mu.Lock()
	if w.destroyed {
		w.writing = false
		req := w.destroyReq
		w.destroyReq = nil
		w.mu.Unlock()
		if req != nil {
			w.teardown(req)
		}
		return
	}
	if !w.pending.empty() {
		next := w.takePending()
		w.mu.Unlock()
		w.issue(next)
		return
	}

	w.writing = false
	drain := w.needDrain && w.length < w.hwm
	if drain {
		w.needDrain = false
		w.stats.DrainEvents++
	}
	finalize := w.readyToFinalize()
	w.mu.Unlock()

	if drain {
		if w.metrics != nil {
			w.metrics.WriterDrainEvents.WithLabelValues(w.config.Name).Inc()
		}
		w.signals.emit(Event{Signal: SignalDrain})
	}
	if finalize {
		w.finalize()
	}
}

// finalize runs end-of-stream teardown on the sink.
func (w *BufferedWriter) finalize() {
	w.callFinalizer(nil, func(err error) {
		w.exec.post(func() { w.onFinalized(err) })
	})
}

func (w *BufferedWriter) callFinalizer(err error, done func(error)) {
	if w.finalizer == nil {
		done(err)
		return
	}
	var called atomic.Bool
	w.finalizer.Finalize(err, func(ferr error) {
		if !called.CompareAndSwap(false, true) {
			w.logger.Warn("sink completed finalize twice")
			return
		}
		done(ferr)
	})
}

// onFinalized completes the end-of-stream path after the sink was finalized.
func (w *BufferedWriter) onFinalized(ferr error) {
	w.mu.Lock()
	w.tornDown = true
	w.finished = true
	cbs := w.endCbs
	w.endCbs = nil
	req := w.destroyReq
	w.destroyReq = nil
	autoDestroy := w.config.AutoDestroy && !w.destroyed
	destroyed := w.destroyed
	w.mu.Unlock()

	w.logger.Debug("writer finished", zap.Error(ferr))
	w.recordLifecycle("finish")
	w.signals.emit(Event{Signal: SignalFinish, Err: ferr})
	for _, cb := range cbs {
		cb(ferr)
	}

	switch {
	case req != nil:
		// Destroy arrived while finalizing; the teardown already ran.
		err := req.err
		if err == nil {
			err = ferr
		}
		w.completeDestroy(req, err)
	case ferr != nil && !destroyed:
		w.escalate(ferr)
		if !autoDestroy {
			w.closeDone()
		}
	case autoDestroy:
		_ = w.Destroy(nil, nil)
	default:
		w.closeDone()
	}
}

// teardown finalizes the sink for a destroy request, unless the end path
// already did.
func (w *BufferedWriter) teardown(req *destroyRequest) {
	w.mu.Lock()
	if w.tornDown {
		w.mu.Unlock()
		w.completeDestroy(req, req.err)
		return
	}
	w.finalizing = true
	w.mu.Unlock()

	w.callFinalizer(req.err, func(err error) {
		w.exec.post(func() {
			w.mu.Lock()
			w.tornDown = true
			w.mu.Unlock()
			w.completeDestroy(req, err)
		})
	})
}

func (w *BufferedWriter) completeDestroy(req *destroyRequest, err error) {
	w.mu.Lock()
	var cbs []Callback
	if !w.finished {
		cbs = w.endCbs
		w.endCbs = nil
	}
	emitClose := w.config.EmitClose && !w.closed
	w.closed = true
	w.mu.Unlock()

	if req.cb != nil {
		req.cb(err)
	} else if err != nil {
		w.emitError(err)
	}
	for _, cb := range cbs {
		cb(sferrors.Destroyed("end"))
	}
	if emitClose {
		w.recordLifecycle("close")
		w.signals.emit(Event{Signal: SignalClose, Err: err})
	}
	w.closeDone()
}

func (w *BufferedWriter) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

// escalate applies the error policy to a sink failure: destroy the writer
// with AutoDestroy, otherwise raise an error signal and keep it alive.
// Failures on an already destroyed writer only reach their callbacks.
func (w *BufferedWriter) escalate(err error) {
	w.mu.Lock()
	destroyed := w.destroyed
	autoDestroy := w.config.AutoDestroy
	w.mu.Unlock()

	if destroyed {
		w.logger.Debug("error after destroy", zap.Error(err))
		return
	}
	if autoDestroy {
		_ = w.Destroy(err, nil)
		return
	}
	w.emitError(err)
}

// emitError raises an error signal. Unhandled errors are logged and kept
// in Err.
func (w *BufferedWriter) emitError(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.stats.Errors++
	hooks := make([]func(error), len(w.errorHooks))
	copy(hooks, w.errorHooks)
	w.mu.Unlock()

	if w.metrics != nil {
		kind := string(sferrors.CodeOf(err))
		if kind == "" {
			kind = "sink"
		}
		w.metrics.WriterErrors.WithLabelValues(w.config.Name, kind).Inc()
	}

	for _, hook := range hooks {
		hook(err)
	}
	handled := w.config.OnError != nil
	if w.config.OnError != nil {
		w.config.OnError(err)
	}
	if !w.signals.emit(Event{Signal: SignalError, Err: err}) && !handled {
		w.logger.Error("unhandled writer error", zap.Error(err))
	}
}

func (w *BufferedWriter) recordAccepted(size, queued int, ok bool) {
	if w.metrics == nil {
		return
	}
	w.metrics.WriterChunksAccepted.WithLabelValues(w.config.Name).Inc()
	w.metrics.WriterBytesAccepted.WithLabelValues(w.config.Name).Add(float64(size))
	w.metrics.WriterQueuedBytes.WithLabelValues(w.config.Name).Set(float64(queued))
	if !ok {
		w.metrics.WriterBackpressure.WithLabelValues(w.config.Name).Inc()
	}
}

func (w *BufferedWriter) recordWritten(n int) {
	w.mu.Lock()
	w.stats.BytesWritten += int64(n)
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.WriterBytesWritten.WithLabelValues(w.config.Name).Add(float64(n))
	}
}

func (w *BufferedWriter) recordQueued(queued int) {
	if w.metrics != nil {
		w.metrics.WriterQueuedBytes.WithLabelValues(w.config.Name).Set(float64(queued))
	}
}

func (w *BufferedWriter) recordLifecycle(event string) {
	if w.metrics != nil {
		w.metrics.WriterLifecycle.WithLabelValues(w.config.Name, event).Inc()
	}
}

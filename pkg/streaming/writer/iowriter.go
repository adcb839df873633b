package writer

import (
	"context"
	"sync"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// IOWriter adapts a BufferedWriter to io.WriteCloser. Write blocks while the
// writer asks for backpressure; failures of earlier chunks are reported by
// later calls.
type IOWriter struct {
	ctx   context.Context
	w     *BufferedWriter
	drain chan struct{}

	mu  sync.Mutex
	err error
}

// NewIOWriter returns an io.WriteCloser writing to w. ctx bounds how long
// Write and Close wait.
func NewIOWriter(ctx context.Context, w *BufferedWriter) *IOWriter {
	iw := &IOWriter{
		ctx:   ctx,
		w:     w,
		drain: make(chan struct{}, 1),
	}
	w.On(SignalDrain, func(Event) {
		select {
		case iw.drain <- struct{}{}:
		default:
		}
	})
	return iw
}

// Write queues p and waits for drain when the writer is over its high-water mark.
func (iw *IOWriter) Write(p []byte) (int, error) {
	if err := iw.firstErr(); err != nil {
		return 0, err
	}
	if iw.w.Ended() {
		return 0, sferrors.WriteAfterEnd()
	}
	if iw.w.Destroyed() {
		return 0, sferrors.Destroyed("write")
	}

	if iw.w.Write(p, iw.track) {
		return len(p), nil
	}
	if err := iw.waitDrain(); err != nil {
		return len(p), err
	}
	return len(p), iw.firstErr()
}

// Close ends the writer and waits until it finished or was torn down.
func (iw *IOWriter) Close() error {
	done := make(chan error, 1)
	iw.w.End(func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil && !sferrors.IsDestroyed(err) {
			iw.track(err)
		}
	case <-iw.ctx.Done():
		return iw.ctx.Err()
	}
	select {
	case <-iw.w.Done():
	case <-iw.ctx.Done():
		return iw.ctx.Err()
	}
	if err := iw.firstErr(); err != nil {
		return err
	}
	return iw.w.Err()
}

func (iw *IOWriter) waitDrain() error {
	for iw.w.NeedDrain() {
		select {
		case <-iw.drain:
		case <-iw.w.Done():
			return iw.w.Err()
		case <-iw.ctx.Done():
			return iw.ctx.Err()
		}
	}
	return nil
}

func (iw *IOWriter) track(err error) {
	if err == nil {
		return
	}
	iw.mu.Lock()
	if iw.err == nil {
		iw.err = err
	}
	iw.mu.Unlock()
}

func (iw *IOWriter) firstErr() error {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	return iw.err
}

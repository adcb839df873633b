package writer

import (
	"io"
	"net"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// CompletionFunc reports the outcome of a sink write: the number of bytes the
// sink accepted and the failure, if any.
type CompletionFunc = func(n int, err error)

// Sink is the low-level byte consumer driven by a BufferedWriter.
//
// WriteOne must eventually call done exactly once. It may call done from any
// goroutine, including synchronously. The writer never issues a second
// operation before done was called for the previous one.
type Sink interface {
	WriteOne(block []byte, done CompletionFunc)
}

// BatchSink is implemented by sinks that can write an ordered list of blocks
// as one operation. Without it, batches are concatenated and passed to WriteOne.
type BatchSink interface {
	Sink
	WriteMany(blocks [][]byte, done CompletionFunc)
}

// Finalizer is implemented by sinks that need end-of-stream teardown. err is
// the error the stream is being torn down with (nil on a clean end); done
// receives the resulting error, typically err merged with any teardown failure.
type Finalizer interface {
	Finalize(err error, done func(err error))
}

// SinkFuncs adapts plain functions to the sink capability set. A nil
// WriteOneFunc fails every dispatch with a method-not-implemented error.
type SinkFuncs struct {
	WriteOneFunc  func(block []byte, done CompletionFunc)
	WriteManyFunc func(blocks [][]byte, done CompletionFunc)
	FinalizeFunc  func(err error, done func(err error))
}

// WriteOne implements Sink.
func (s SinkFuncs) WriteOne(block []byte, done CompletionFunc) {
	if s.WriteOneFunc == nil {
		done(0, sferrors.NotImplemented("writeOne"))
		return
	}
	s.WriteOneFunc(block, done)
}

// WriteMany implements BatchSink.
func (s SinkFuncs) WriteMany(blocks [][]byte, done CompletionFunc) {
	s.WriteManyFunc(blocks, done)
}

// Finalize implements Finalizer.
func (s SinkFuncs) Finalize(err error, done func(err error)) {
	if s.FinalizeFunc == nil {
		done(err)
		return
	}
	s.FinalizeFunc(err, done)
}

// capabilities resolves the optional operations of sink.
func capabilities(sink Sink) (BatchSink, Finalizer) {
	var batch BatchSink
	var fin Finalizer
	switch funcs := sink.(type) {
	case SinkFuncs:
		if funcs.WriteManyFunc != nil {
			batch = funcs
		}
		return batch, funcs
	case *SinkFuncs:
		if funcs.WriteManyFunc != nil {
			batch = funcs
		}
		return batch, funcs
	}
	if b, ok := sink.(BatchSink); ok {
		batch = b
	}
	if f, ok := sink.(Finalizer); ok {
		fin = f
	}
	return batch, fin
}

// ioSink drives a blocking io.Writer from a goroutine per operation.
type ioSink struct {
	w io.Writer
}

// FromWriter returns a Sink backed by w. Each operation runs on its own
// goroutine so the writer's callbacks are not blocked by slow I/O. Batches
// are written with net.Buffers, which uses vectored I/O for connections. If w
// is an io.Closer it is closed on finalize.
func FromWriter(w io.Writer) BatchSink {
	return &ioSink{w: w}
}

func (s *ioSink) WriteOne(block []byte, done CompletionFunc) {
	go func() {
		n, err := s.w.Write(block)
		done(n, err)
	}()
}

func (s *ioSink) WriteMany(blocks [][]byte, done CompletionFunc) {
	go func() {
		bufs := net.Buffers(blocks)
		n, err := bufs.WriteTo(s.w)
		done(int(n), err)
	}()
}

func (s *ioSink) Finalize(err error, done func(err error)) {
	closer, ok := s.w.(io.Closer)
	if !ok {
		done(err)
		return
	}
	go func() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		done(err)
	}()
}

package filesink

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// openFile opens the target path. Tests replace it to control open timing.
var openFile = os.OpenFile

// Config holds configuration for a FileSink.
type Config struct {
	// Path is the file to open. Ignored when File is set.
	Path string

	// File is an already open file to write to.
	File *os.File

	// Start is the offset of the first write. Nil writes sequentially from
	// the file's current position; otherwise writes are positional.
	Start *int64

	// Flags is the open mode ("w", "a", "r+", "wx", ...). Defaults to "w".
	Flags string

	// Mode is the permission used when the file is created.
	Mode os.FileMode

	// AutoClose closes the file whenever an error signal is raised.
	AutoClose bool

	// Writer configures the underlying BufferedWriter.
	Writer writer.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Flags:     "w",
		Mode:      0o666,
		AutoClose: true,
		Writer:    writer.DefaultConfig(),
	}
}

// FileSink is a BufferedWriter backed by a file that may still be opening.
// Writes issued before the file is open are held and applied in order once
// SignalOpen and SignalReady fired.
type FileSink struct {
	*writer.BufferedWriter

	path       string
	start      int64
	positional bool
	logger     *zap.Logger
	metrics    *metrics.Registry
	name       string

	mu      sync.Mutex
	file    *os.File
	opening bool
	openErr error
	held    []func(*os.File, error)
	closed  bool

	bytesWritten atomic.Int64
}

// New opens path for writing with the default configuration.
func New(path string) (*FileSink, error) {
	config := DefaultConfig()
	config.Path = path
	return NewWithConfig(config)
}

// NewWithConfig creates a FileSink. Without Config.File the file is opened
// asynchronously and SignalOpen carries its descriptor.
func NewWithConfig(config Config) (*FileSink, error) {
	if config.File == nil {
		if err := validation.ValidateNotEmpty("filesink", "path", config.Path); err != nil {
			return nil, err
		}
	}
	if config.Flags == "" {
		config.Flags = "w"
	}
	flag, err := ParseFlags(config.Flags)
	if err != nil {
		return nil, err
	}
	if config.Mode == 0 {
		config.Mode = 0o666
	}

	s := &FileSink{
		path: config.Path,
		file: config.File,
	}
	if config.File != nil && s.path == "" {
		s.path = config.File.Name()
	}
	if config.Start != nil {
		if err := validation.ValidateOffset("filesink", "start", *config.Start); err != nil {
			return nil, err
		}
		s.start = *config.Start
		// Positional writes are rejected on append-mode files.
		s.positional = flag&os.O_APPEND == 0
	}

	if config.Writer.Name == "" {
		config.Writer.Name = filepath.Base(s.path)
	}
	w, err := writer.NewWithConfig(&fileOps{s: s}, config.Writer)
	if err != nil {
		return nil, err
	}
	s.BufferedWriter = w
	s.name = w.Name()
	s.metrics = config.Writer.Metrics
	s.logger = config.Writer.Logger
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("writer", s.name), zap.String("path", s.path))

	if config.AutoClose {
		w.AddErrorHook(s.autoClose)
	}

	if s.file == nil {
		s.opening = true
		go s.open(flag, config.Mode)
	}
	return s, nil
}

func (s *FileSink) open(flag int, mode os.FileMode) {
	started := time.Now()
	f, err := openFile(s.path, flag, mode)

	if s.metrics != nil {
		s.metrics.FileSinkOpenDuration.WithLabelValues(s.name).Observe(time.Since(started).Seconds())
	}

	if err != nil {
		err = errors.Wrapf(err, "filesink: open %s", s.path)
		s.recordOpen("error")
		s.logger.Warn("open failed", zap.Error(err))

		s.mu.Lock()
		s.opening = false
		s.openErr = err
		held := s.held
		s.held = nil
		s.mu.Unlock()

		if len(held) == 0 {
			s.Fail(err)
			return
		}
		for _, op := range held {
			op(nil, err)
		}
		return
	}

	s.recordOpen("ok")
	s.logger.Debug("file opened")

	s.mu.Lock()
	s.file = f
	s.opening = false
	held := s.held
	s.held = nil
	s.mu.Unlock()

	s.Emit(writer.SignalOpen, f.Fd())
	if len(held) > 0 {
		s.Once(writer.SignalReady, func(writer.Event) {
			for _, op := range held {
				op(f, nil)
			}
		})
	}
	s.Emit(writer.SignalReady, nil)
}

// whenOpen runs op with the open file, holding it while the open is in
// progress. op receives the open error if opening failed.
func (s *FileSink) whenOpen(op func(*os.File, error)) {
	s.mu.Lock()
	if s.opening {
		s.held = append(s.held, op)
		s.mu.Unlock()
		return
	}
	f, err := s.file, s.openErr
	s.mu.Unlock()
	op(f, err)
}

func (s *FileSink) offset() int64 {
	return s.start + s.bytesWritten.Load()
}

func (s *FileSink) autoClose(err error) {
	if sferrors.IsWriteAfterEnd(err) || s.Destroyed() {
		return
	}
	s.logger.Debug("closing after error", zap.Error(err))
	_ = s.Destroy(nil, nil)
}

// closeFile closes the file once and reports the close error.
func (s *FileSink) closeFile() error {
	s.mu.Lock()
	if s.closed || s.file == nil {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	f := s.file
	s.mu.Unlock()

	if err := f.Close(); err != nil {
		s.recordClose("error")
		return errors.Wrapf(err, "filesink: close %s", s.path)
	}
	s.recordClose("ok")
	s.logger.Debug("file closed", zap.Int64("bytes_written", s.bytesWritten.Load()))
	return nil
}

// BytesWritten returns the number of bytes the file accepted.
func (s *FileSink) BytesWritten() int64 {
	return s.bytesWritten.Load()
}

// Path returns the target path.
func (s *FileSink) Path() string {
	return s.path
}

// Pending reports whether the file is still being opened.
func (s *FileSink) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opening
}

// Closed reports whether the file was closed.
func (s *FileSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FileSink) recordOpen(status string) {
	if s.metrics != nil {
		s.metrics.FileSinkOpens.WithLabelValues(s.name, status).Inc()
	}
}

func (s *FileSink) recordClose(status string) {
	if s.metrics != nil {
		s.metrics.FileSinkCloses.WithLabelValues(s.name, status).Inc()
	}
}

// fileOps implements the writer sink operations on top of a FileSink.
type fileOps struct {
	s *FileSink
}

func (o *fileOps) WriteOne(block []byte, done writer.CompletionFunc) {
	o.s.whenOpen(func(f *os.File, err error) {
		if err != nil {
			done(0, err)
			return
		}
		go func() {
			var n int
			var werr error
			if o.s.positional {
				n, werr = f.WriteAt(block, o.s.offset())
			} else {
				n, werr = f.Write(block)
			}
			o.finish(n, werr, done)
		}()
	})
}

func (o *fileOps) WriteMany(blocks [][]byte, done writer.CompletionFunc) {
	o.s.whenOpen(func(f *os.File, err error) {
		if err != nil {
			done(0, err)
			return
		}
		go func() {
			n, werr := writeBlocks(f, blocks, o.s.offset(), o.s.positional)
			o.finish(n, werr, done)
		}()
	})
}

func (o *fileOps) finish(n int, err error, done writer.CompletionFunc) {
	if n > 0 {
		o.s.bytesWritten.Add(int64(n))
	}
	if err != nil {
		err = errors.Wrapf(err, "filesink: write %s", o.s.path)
	}
	done(n, err)
}

func (o *fileOps) Finalize(err error, done func(error)) {
	o.s.whenOpen(func(f *os.File, openErr error) {
		if f == nil {
			// A stream ended before a failed open finishes with the open
			// error. On destroy the open error was already raised.
			if err == nil && !o.s.Destroyed() {
				err = openErr
			}
			done(err)
			return
		}
		go func() {
			done(multierr.Combine(err, o.s.closeFile()))
		}()
	})
}

package throttle

import (
	"math"
	"time"

	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// Config holds configuration for a throttled sink.
type Config struct {
	// BytesPerSecond is the sustained write rate.
	BytesPerSecond float64

	// Burst is the number of bytes that may be written without delay.
	// Defaults to one second worth of BytesPerSecond.
	Burst int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Name labels the throttle metrics.
	Name string

	// Metrics records delays and tokens. Nil disables metrics.
	Metrics *metrics.Registry
}

// Sink delays the operations of an inner sink so that no more than the
// configured number of bytes per second reach it.
type Sink struct {
	inner     writer.Sink
	batch     writer.BatchSink
	finalizer writer.Finalizer
	limiter   *Limiter
	name      string
	metrics   *metrics.Registry
}

func applyConfigDefaults(config Config) Config {
	if config.Burst == 0 && config.BytesPerSecond >= 1 {
		config.Burst = int(math.Min(math.Ceil(config.BytesPerSecond), math.MaxInt32))
	}
	if config.Burst == 0 {
		config.Burst = 1
	}
	if config.Name == "" {
		config.Name = "default"
	}
	return config
}

// New wraps inner with a byte rate limit.
func New(inner writer.Sink, config Config) (*Sink, error) {
	if err := validation.ValidateNotNil("throttle", "sink", inner); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)
	limiter, err := NewLimiter(config.BytesPerSecond, config.Burst, config.Clock)
	if err != nil {
		return nil, err
	}
	return newSink(inner, limiter, config), nil
}

// Wrap returns a sink decorator for writer.Config.Wrap. Every wrapped sink
// gets its own limiter.
func Wrap(config Config) (func(writer.Sink) writer.Sink, error) {
	config = applyConfigDefaults(config)
	if _, err := NewLimiter(config.BytesPerSecond, config.Burst, config.Clock); err != nil {
		return nil, err
	}
	return func(inner writer.Sink) writer.Sink {
		limiter, _ := NewLimiter(config.BytesPerSecond, config.Burst, config.Clock)
		return newSink(inner, limiter, config)
	}, nil
}

func newSink(inner writer.Sink, limiter *Limiter, config Config) *Sink {
	s := &Sink{
		inner:   inner,
		limiter: limiter,
		name:    config.Name,
		metrics: config.Metrics,
	}
	s.batch, _ = inner.(writer.BatchSink)
	s.finalizer, _ = inner.(writer.Finalizer)
	return s
}

// Limiter returns the limiter shared by all operations of s.
func (s *Sink) Limiter() *Limiter {
	return s.limiter
}

// WriteOne writes block once enough tokens are available.
func (s *Sink) WriteOne(block []byte, done writer.CompletionFunc) {
	size := len(block)
	s.after(size, func() {
		s.inner.WriteOne(block, s.refunding(size, done))
	})
}

// WriteMany writes blocks in one inner operation once enough tokens are
// available. Inner sinks without batch support receive the blocks joined.
func (s *Sink) WriteMany(blocks [][]byte, done writer.CompletionFunc) {
	size := 0
	for _, b := range blocks {
		size += len(b)
	}
	s.after(size, func() {
		if s.batch != nil {
			s.batch.WriteMany(blocks, s.refunding(size, done))
			return
		}
		joined := make([]byte, 0, size)
		for _, b := range blocks {
			joined = append(joined, b...)
		}
		s.inner.WriteOne(joined, s.refunding(size, done))
	})
}

// Finalize passes through to the inner sink.
func (s *Sink) Finalize(err error, done func(error)) {
	if s.finalizer == nil {
		done(err)
		return
	}
	s.finalizer.Finalize(err, done)
}

func (s *Sink) after(size int, op func()) {
	delay := s.limiter.Reserve(size)
	if s.metrics != nil {
		s.metrics.ThrottleDelay.WithLabelValues(s.name).Observe(delay.Seconds())
		s.metrics.ThrottleTokens.WithLabelValues(s.name).Set(s.limiter.Tokens())
	}
	if delay <= 0 {
		op()
		return
	}
	time.AfterFunc(delay, op)
}

// refunding returns tokens for bytes the inner sink did not take.
func (s *Sink) refunding(size int, done writer.CompletionFunc) writer.CompletionFunc {
	return func(n int, err error) {
		if n < size {
			s.limiter.Refund(size - max(n, 0))
		}
		done(n, err)
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/scheduling/corkwindow"
	"github.com/vnykmshr/sinkflow/pkg/streaming/filesink"
	"github.com/vnykmshr/sinkflow/pkg/streaming/redissink"
	"github.com/vnykmshr/sinkflow/pkg/streaming/throttle"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// stdinName selects standard input as an input.
const stdinName = "-"

// copier copies inputs into one configured sink.
type copier struct {
	config  *Config
	logger  *zap.Logger
	metrics *metrics.Registry
	stdin   io.Reader
}

// run copies every input, in order, into the sink and returns the number of
// bytes accepted. The sink is always ended, also when a copy fails.
func (c *copier) run(ctx context.Context, inputs []string) (int64, error) {
	if len(inputs) == 0 {
		inputs = []string{stdinName}
	}

	w, release, err := c.openSink()
	if err != nil {
		return 0, err
	}
	defer release()

	var window *corkwindow.Window
	if c.config.Cork.Schedule != "" {
		window, err = corkwindow.New(w, corkwindow.Config{
			Schedule: c.config.Cork.Schedule,
			Name:     w.Name(),
			Logger:   c.logger,
			Metrics:  c.metrics,
		})
		if err != nil {
			return 0, multierr.Combine(err, w.Destroy(nil, nil))
		}
		window.Start()
	}

	out := writer.NewIOWriter(ctx, w)
	var total int64
	var copyErr error
	for _, name := range inputs {
		n, err := c.copyInput(out, name)
		total += n
		if err != nil {
			copyErr = err
			break
		}
	}

	if window != nil {
		window.Stop()
	}
	closeErr := out.Close()

	c.logger.Info("copy finished",
		zap.String("writer", w.Name()),
		zap.Int64("bytes", total),
		zap.Int64("bytes_written", w.Stats().BytesWritten))
	return total, multierr.Combine(copyErr, closeErr)
}

func (c *copier) copyInput(out io.Writer, name string) (int64, error) {
	if name == stdinName {
		return io.Copy(out, c.stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(out, f)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", name, err)
	}
	c.logger.Debug("input copied", zap.String("input", name), zap.Int64("bytes", n))
	return n, nil
}

func (c *copier) writerConfig(name string) (writer.Config, error) {
	config := writer.DefaultConfig()
	config.HighWaterMark = c.config.Writer.HighWaterMark
	config.Name = c.config.Writer.Name
	if config.Name == "" {
		config.Name = name
	}
	config.Logger = c.logger
	config.Metrics = c.metrics

	if c.config.Writer.Rate > 0 {
		wrap, err := throttle.Wrap(throttle.Config{
			BytesPerSecond: c.config.Writer.Rate,
			Burst:          c.config.Writer.Burst,
			Name:           config.Name,
			Metrics:        c.metrics,
		})
		if err != nil {
			return config, err
		}
		config.Wrap = wrap
	}
	return config, nil
}

// openSink builds the configured sink. release frees resources the sink
// does not own.
func (c *copier) openSink() (*writer.BufferedWriter, func(), error) {
	switch c.config.Sink {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.config.Redis.Addr,
			Password: c.config.Redis.Password,
			DB:       c.config.Redis.DB,
		})
		config := redissink.DefaultConfig()
		config.Redis = client
		config.Key = c.config.Redis.Key
		config.TTL = c.config.Redis.TTL
		config.Truncate = c.config.Redis.Truncate
		if c.config.Redis.Timeout > 0 {
			config.Timeout = c.config.Redis.Timeout
		}
		wc, err := c.writerConfig("redis:" + c.config.Redis.Key)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		config.Writer = wc

		s, err := redissink.New(config)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s.BufferedWriter, func() { _ = client.Close() }, nil

	default:
		mode, err := c.config.FileMode()
		if err != nil {
			return nil, nil, err
		}
		config := filesink.DefaultConfig()
		config.Path = c.config.Output.Path
		config.Flags = c.config.Output.Flags
		config.Mode = mode
		config.AutoClose = c.config.Output.AutoClose
		if c.config.Output.Start >= 0 {
			start := c.config.Output.Start
			config.Start = &start
		}
		config.Writer, err = c.writerConfig(filepath.Base(c.config.Output.Path))
		if err != nil {
			return nil, nil, err
		}

		s, err := filesink.NewWithConfig(config)
		if err != nil {
			return nil, nil, err
		}
		return s.BufferedWriter, func() {}, nil
	}
}

package redissink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// Config holds configuration for a RedisSink.
type Config struct {
	// Redis client the sink appends with
	Redis redis.UniversalClient

	// Key is the string key chunks are appended to
	Key string

	// Timeout bounds each Redis operation (defaults to 500ms)
	Timeout time.Duration

	// TTL is applied to the key when the writer is finalized. Zero keeps
	// the key without expiry.
	TTL time.Duration

	// Truncate deletes the key before the first write.
	Truncate bool

	// Writer configures the underlying BufferedWriter.
	Writer writer.Config
}

// DefaultConfig returns a default RedisSink configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 500 * time.Millisecond,
		Writer:  writer.DefaultConfig(),
	}
}

// RedisSink is a BufferedWriter that appends every chunk to a Redis string.
// Batches are applied in one MULTI/EXEC transaction.
type RedisSink struct {
	*writer.BufferedWriter

	config       Config
	bytesWritten atomic.Int64
}

// New creates a RedisSink. With Config.Truncate the key is deleted first.
func New(config Config) (*RedisSink, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	s := &RedisSink{config: config}
	if config.Truncate {
		ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
		defer cancel()
		if err := config.Redis.Del(ctx, config.Key).Err(); err != nil {
			return nil, &RedisError{Operation: "del", Err: err}
		}
	}

	w, err := writer.NewWithConfig(&redisOps{s: s}, config.Writer)
	if err != nil {
		return nil, err
	}
	s.BufferedWriter = w
	return s, nil
}

// validateConfig validates the sink configuration.
func validateConfig(config Config) error {
	if config.Redis == nil {
		return &ConfigError{"redis client is required"}
	}
	if config.Key == "" {
		return &ConfigError{"key is required"}
	}
	if config.Timeout < 0 {
		return &ConfigError{"timeout cannot be negative"}
	}
	if config.TTL < 0 {
		return &ConfigError{"ttl cannot be negative"}
	}
	return nil
}

// applyConfigDefaults sets default values for unspecified config fields.
func applyConfigDefaults(config Config) Config {
	if config.Timeout == 0 {
		config.Timeout = 500 * time.Millisecond
	}
	if config.Writer.Name == "" {
		config.Writer.Name = "redis:" + config.Key
	}
	return config
}

// Key returns the Redis key the sink appends to.
func (s *RedisSink) Key() string {
	return s.config.Key
}

// BytesWritten returns the number of bytes appended so far.
func (s *RedisSink) BytesWritten() int64 {
	return s.bytesWritten.Load()
}

type redisOps struct {
	s *RedisSink
}

func (o *redisOps) WriteOne(block []byte, done writer.CompletionFunc) {
	cfg := o.s.config
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		if err := cfg.Redis.Append(ctx, cfg.Key, string(block)).Err(); err != nil {
			done(0, &RedisError{Operation: "append", Err: err})
			return
		}
		o.s.bytesWritten.Add(int64(len(block)))
		done(len(block), nil)
	}()
}

func (o *redisOps) WriteMany(blocks [][]byte, done writer.CompletionFunc) {
	cfg := o.s.config
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		total := 0
		_, err := cfg.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, b := range blocks {
				pipe.Append(ctx, cfg.Key, string(b))
				total += len(b)
			}
			return nil
		})
		if err != nil {
			done(0, &RedisError{Operation: "append pipeline", Err: err})
			return
		}
		o.s.bytesWritten.Add(int64(total))
		done(total, nil)
	}()
}

func (o *redisOps) Finalize(err error, done func(error)) {
	cfg := o.s.config
	if cfg.TTL == 0 {
		done(err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()

		var expireErr error
		if e := cfg.Redis.Expire(ctx, cfg.Key, cfg.TTL).Err(); e != nil {
			expireErr = &RedisError{Operation: "expire", Err: e}
		}
		done(multierr.Combine(err, expireErr))
	}()
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "redis sink config error: " + e.Message
}

// Unwrap lets errors.Is match sferrors.ErrInvalidConfiguration.
func (e *ConfigError) Unwrap() error {
	return sferrors.ErrInvalidConfiguration
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

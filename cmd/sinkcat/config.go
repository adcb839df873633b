package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/vnykmshr/sinkflow/pkg/streaming/filesink"
)

// Config is the sinkcat configuration, read from YAML, SINKCAT_* environment
// variables and command line flags, in increasing precedence.
type Config struct {
	Sink    string        `mapstructure:"sink"`
	Output  OutputConfig  `mapstructure:"output"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Writer  WriterConfig  `mapstructure:"writer"`
	Cork    CorkConfig    `mapstructure:"cork"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// OutputConfig configures the file sink.
type OutputConfig struct {
	Path  string `mapstructure:"path"`
	Flags string `mapstructure:"flags"`
	// Mode is an octal permission string such as "0644".
	Mode string `mapstructure:"mode"`
	// Start is the offset of the first write; -1 writes sequentially.
	Start     int64 `mapstructure:"start"`
	AutoClose bool  `mapstructure:"auto_close"`
}

// RedisConfig configures the redis sink.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Truncate bool          `mapstructure:"truncate"`
}

// WriterConfig configures the buffered writer in front of the sink.
type WriterConfig struct {
	Name          string `mapstructure:"name"`
	HighWaterMark int    `mapstructure:"high_water_mark"`
	// Rate limits the sink to this many bytes per second; 0 disables it.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// CorkConfig enables time-windowed batching when Schedule is set.
type CorkConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// FileMode parses Output.Mode.
func (c *Config) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.Output.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid output.mode %q: %w", c.Output.Mode, err)
	}
	return os.FileMode(mode), nil
}

// Loader loads a Config.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader reading SINKCAT_ prefixed environment variables.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SINKCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads the file at path, if any, applies overrides on top and
// validates the result.
func (l *Loader) Load(path string, overrides map[string]interface{}) (*Config, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range overrides {
		l.v.Set(key, value)
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("sink", "file")

	l.v.SetDefault("output.path", "")
	l.v.SetDefault("output.flags", "w")
	l.v.SetDefault("output.mode", "0666")
	l.v.SetDefault("output.start", -1)
	l.v.SetDefault("output.auto_close", true)

	l.v.SetDefault("redis.addr", "localhost:6379")
	l.v.SetDefault("redis.password", "")
	l.v.SetDefault("redis.db", 0)
	l.v.SetDefault("redis.key", "")
	l.v.SetDefault("redis.ttl", "0s")
	l.v.SetDefault("redis.timeout", "500ms")
	l.v.SetDefault("redis.truncate", false)

	l.v.SetDefault("writer.name", "")
	l.v.SetDefault("writer.high_water_mark", 64*1024)
	l.v.SetDefault("writer.rate", 0)
	l.v.SetDefault("writer.burst", 0)

	l.v.SetDefault("cork.schedule", "")

	l.v.SetDefault("log.level", "info")

	l.v.SetDefault("metrics.addr", "")
	l.v.SetDefault("metrics.namespace", "sinkflow")
}

// Validate checks a loaded Config.
func (l *Loader) Validate(config *Config) error {
	var errs []error

	switch config.Sink {
	case "file":
		if config.Output.Path == "" {
			errs = append(errs, errors.New("output.path is required for the file sink"))
		}
		if _, err := filesink.ParseFlags(config.Output.Flags); err != nil {
			errs = append(errs, fmt.Errorf("output.flags: %w", err))
		}
		if _, err := config.FileMode(); err != nil {
			errs = append(errs, err)
		}
		if config.Output.Start < -1 {
			errs = append(errs, fmt.Errorf("output.start must be -1 or a non-negative offset, got %d", config.Output.Start))
		}
	case "redis":
		if config.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis sink"))
		}
		if config.Redis.Key == "" {
			errs = append(errs, errors.New("redis.key is required for the redis sink"))
		}
		if config.Redis.TTL < 0 {
			errs = append(errs, errors.New("redis.ttl must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q (want file or redis)", config.Sink))
	}

	if config.Writer.HighWaterMark < 0 {
		errs = append(errs, errors.New("writer.high_water_mark must not be negative"))
	}
	if config.Writer.Rate < 0 {
		errs = append(errs, errors.New("writer.rate must not be negative"))
	}
	if config.Writer.Burst < 0 {
		errs = append(errs, errors.New("writer.burst must not be negative"))
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", config.Log.Level))
	}

	return multierr.Combine(errs...)
}

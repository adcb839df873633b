package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/sinkflow/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sinkcat.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	config, err := NewLoader().Load("", map[string]interface{}{"output.path": "out.log"})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, config.Sink, "file")
	testutil.AssertEqual(t, config.Output.Path, "out.log")
	testutil.AssertEqual(t, config.Output.Flags, "w")
	testutil.AssertEqual(t, config.Output.Start, int64(-1))
	testutil.AssertEqual(t, config.Output.AutoClose, true)
	testutil.AssertEqual(t, config.Writer.HighWaterMark, 64*1024)
	testutil.AssertEqual(t, config.Redis.Timeout, 500*time.Millisecond)
	testutil.AssertEqual(t, config.Log.Level, "info")
	testutil.AssertEqual(t, config.Metrics.Namespace, "sinkflow")

	mode, err := config.FileMode()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, mode, os.FileMode(0o666))
}

func TestLoader_File(t *testing.T) {
	path := writeConfig(t, `
sink: redis
redis:
  addr: redis.internal:6380
  key: logs:today
  ttl: 24h
  truncate: true
writer:
  name: today
  high_water_mark: 1024
cork:
  schedule: "@every 2s"
log:
  level: debug
`)

	config, err := NewLoader().Load(path, nil)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, config.Sink, "redis")
	testutil.AssertEqual(t, config.Redis.Addr, "redis.internal:6380")
	testutil.AssertEqual(t, config.Redis.Key, "logs:today")
	testutil.AssertEqual(t, config.Redis.TTL, 24*time.Hour)
	testutil.AssertEqual(t, config.Redis.Truncate, true)
	testutil.AssertEqual(t, config.Writer.Name, "today")
	testutil.AssertEqual(t, config.Writer.HighWaterMark, 1024)
	testutil.AssertEqual(t, config.Cork.Schedule, "@every 2s")
	testutil.AssertEqual(t, config.Log.Level, "debug")
}

func TestLoader_EnvironmentAndOverrides(t *testing.T) {
	t.Setenv("SINKCAT_OUTPUT_PATH", "/tmp/from-env.log")
	t.Setenv("SINKCAT_OUTPUT_FLAGS", "a")
	t.Setenv("SINKCAT_WRITER_HIGH_WATER_MARK", "2048")

	path := writeConfig(t, "output:\n  path: /tmp/from-file.log\n  mode: \"0600\"\n")

	config, err := NewLoader().Load(path, map[string]interface{}{"writer.high_water_mark": 4096})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, config.Output.Path, "/tmp/from-env.log")
	testutil.AssertEqual(t, config.Output.Flags, "a")
	testutil.AssertEqual(t, config.Writer.HighWaterMark, 4096)

	mode, err := config.FileMode()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, mode, os.FileMode(0o600))
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	testutil.AssertError(t, err)
}

func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		wantErr   string
	}{
		{"missing output path", nil, "output.path is required"},
		{"unknown sink", map[string]interface{}{"sink": "kafka"}, "unknown sink"},
		{"bad flags", map[string]interface{}{"output.path": "x", "output.flags": "q"}, "output.flags"},
		{"bad mode", map[string]interface{}{"output.path": "x", "output.mode": "rw"}, "invalid output.mode"},
		{"bad start", map[string]interface{}{"output.path": "x", "output.start": -5}, "output.start"},
		{"negative hwm", map[string]interface{}{"output.path": "x", "writer.high_water_mark": -1}, "high_water_mark"},
		{"bad log level", map[string]interface{}{"output.path": "x", "log.level": "loud"}, "log.level"},
		{"redis without key", map[string]interface{}{"sink": "redis"}, "redis.key is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load("", tt.overrides)
			testutil.AssertError(t, err)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestInitLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := initLogger(level)
		testutil.AssertNoError(t, err)
		if logger == nil {
			t.Fatalf("initLogger(%q) returned nil", level)
		}
	}
}

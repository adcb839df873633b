// Command sinkcat copies standard input or files into a file or a Redis key
// through a buffered, backpressure-aware writer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vnykmshr/sinkflow/pkg/metrics"
)

// flagKeys maps command line flags to the config keys they override.
var flagKeys = map[string]string{
	"sink":         "sink",
	"output":       "output.path",
	"flags":        "output.flags",
	"mode":         "output.mode",
	"start":        "output.start",
	"hwm":          "writer.high_water_mark",
	"rate":         "writer.rate",
	"burst":        "writer.burst",
	"name":         "writer.name",
	"cork":         "cork.schedule",
	"redis-addr":   "redis.addr",
	"redis-key":    "redis.key",
	"ttl":          "redis.ttl",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sinkcat:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "sinkcat",
		Usage:     "copy input into a buffered sink",
		ArgsUsage: "[file ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "sink", Usage: "sink type: file or redis"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file path"},
			&cli.StringFlag{Name: "flags", Usage: "open flags (w, a, r+, wx, ...)"},
			&cli.StringFlag{Name: "mode", Usage: "octal file mode used on create"},
			&cli.Int64Flag{Name: "start", Usage: "offset of the first write, -1 for sequential"},
			&cli.IntFlag{Name: "hwm", Usage: "high water mark in bytes"},
			&cli.Float64Flag{Name: "rate", Usage: "limit the sink to this many bytes per second"},
			&cli.IntFlag{Name: "burst", Usage: "bytes written without delay when rate limited"},
			&cli.StringFlag{Name: "name", Usage: "writer name used in logs and metrics"},
			&cli.StringFlag{Name: "cork", Usage: "cron schedule for batched flushes, e.g. @every 1s"},
			&cli.StringFlag{Name: "redis-addr", Usage: "redis address"},
			&cli.StringFlag{Name: "redis-key", Usage: "redis key to append to"},
			&cli.DurationFlag{Name: "ttl", Usage: "expiry applied to the redis key on finish"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics on this address"},
		},
		Action: action,
	}
}

func action(c *cli.Context) error {
	overrides := make(map[string]interface{})
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.Value(flag)
		}
	}

	config, err := NewLoader().Load(c.String("config"), overrides)
	if err != nil {
		return err
	}

	logger, err := initLogger(config.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if config.Metrics.Addr != "" {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg = metrics.NewRegistryWithConfig(metrics.Config{
			Enabled:   true,
			Registry:  promReg,
			Namespace: config.Metrics.Namespace,
		})
		shutdown := serveMetrics(config.Metrics.Addr, promReg, logger)
		defer shutdown()
	}

	cp := &copier{config: config, logger: logger, metrics: reg, stdin: os.Stdin}
	_, err = cp.run(ctx, c.Args().Slice())
	return err
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("starting metrics server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func initLogger(level string) (*zap.Logger, error) {
	var config zap.Config

	switch level {
	case "debug":
		config = zap.NewDevelopmentConfig()
	case "info", "warn", "error":
		config = zap.NewProductionConfig()
		config.Level = parseLogLevel(level)
	default:
		config = zap.NewProductionConfig()
	}

	return config.Build()
}

func parseLogLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

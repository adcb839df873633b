package corkwindow

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// Config holds configuration for a Window.
type Config struct {
	// Schedule is a cron expression with an optional seconds field, or a
	// descriptor such as "@every 5s" or "@hourly".
	Schedule string

	// Location is the time zone schedules are evaluated in. Defaults to time.Local.
	Location *time.Location

	// Name identifies the window in logs and metrics.
	Name string

	// Logger receives flush logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics records flushes. Nil disables metrics.
	Metrics *metrics.Registry

	// OnFlush is called after every flush with its trigger ("schedule",
	// "manual" or "stop").
	OnFlush func(trigger string)
}

// Window corks a writer and uncorks it on every scheduled tick, so writes
// issued between ticks reach the sink as one batch.
type Window struct {
	target   writer.Writer
	config   Config
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	corked  bool
	started bool
	stopped bool
	flushes int64
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Window for target. The window does nothing until Start.
func New(target writer.Writer, config Config) (*Window, error) {
	if err := validation.ValidateNotNil("corkwindow", "target", target); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("corkwindow", "schedule", config.Schedule); err != nil {
		return nil, err
	}

	schedule, err := parser.Parse(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", config.Schedule, err)
	}

	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	w := &Window{
		target:   target,
		config:   config,
		schedule: schedule,
		logger:   config.Logger.With(zap.String("window", config.Name)),
	}
	w.cron = cron.New(cron.WithParser(parser), cron.WithLocation(config.Location))
	w.cron.Schedule(schedule, cron.FuncJob(func() { w.flush("schedule") }))
	return w, nil
}

// Start corks the target and begins the schedule. Start after Stop is a no-op.
func (w *Window) Start() {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.corked = true
	w.target.Cork()
	w.mu.Unlock()

	w.cron.Start()
	w.logger.Debug("cork window started", zap.String("schedule", w.config.Schedule))
}

// Flush closes the current window immediately: held writes are released
// and a new window begins.
func (w *Window) Flush() {
	w.flush("manual")
}

func (w *Window) flush(trigger string) {
	w.mu.Lock()
	if !w.corked {
		w.mu.Unlock()
		return
	}
	w.target.Uncork()
	if w.target.Ended() || w.target.Destroyed() {
		// Nothing more can be written, so no new window opens.
		w.corked = false
	} else {
		w.target.Cork()
	}
	w.flushes++
	w.mu.Unlock()

	w.record(trigger)
}

// Stop ends the schedule, waits for a running flush and releases the
// window's cork.
func (w *Window) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	<-w.cron.Stop().Done()

	w.mu.Lock()
	wasCorked := w.corked
	if wasCorked {
		w.corked = false
		w.target.Uncork()
		w.flushes++
	}
	w.mu.Unlock()

	if wasCorked {
		w.record("stop")
	}
	w.logger.Debug("cork window stopped")
}

// Next returns the time of the next scheduled flush after now.
func (w *Window) Next() time.Time {
	return w.schedule.Next(time.Now().In(w.config.Location))
}

// Flushes returns the number of windows closed so far.
func (w *Window) Flushes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushes
}

func (w *Window) record(trigger string) {
	w.logger.Debug("cork window flushed", zap.String("trigger", trigger))
	if w.config.Metrics != nil {
		w.config.Metrics.CorkWindowFlushes.WithLabelValues(w.config.Name, trigger).Inc()
	}
	if w.config.OnFlush != nil {
		w.config.OnFlush(trigger)
	}
}

package filesink

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/sinkflow/internal/testutil"
	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// gateOpen blocks file opens until the returned function is called.
func gateOpen(t *testing.T) func() {
	t.Helper()
	gate := make(chan struct{})
	orig := openFile
	openFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		<-gate
		return orig(name, flag, perm)
	}
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(func() {
		release()
		openFile = orig
	})
	return release
}

type events struct {
	mu  sync.Mutex
	log []string
	err []error
}

func watch(s *FileSink) *events {
	ev := &events{}
	for _, sig := range []writer.Signal{writer.SignalOpen, writer.SignalReady, writer.SignalFinish, writer.SignalClose, writer.SignalError} {
		s.On(sig, func(e writer.Event) {
			ev.mu.Lock()
			ev.log = append(ev.log, string(e.Signal))
			if e.Err != nil && e.Signal == writer.SignalError {
				ev.err = append(ev.err, e.Err)
			}
			ev.mu.Unlock()
		})
	}
	return ev
}

func (ev *events) add(name string) {
	ev.mu.Lock()
	ev.log = append(ev.log, name)
	ev.mu.Unlock()
}

func (ev *events) snapshot() []string {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]string(nil), ev.log...)
}

func (ev *events) errors() []error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]error(nil), ev.err...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	testutil.AssertNoError(t, err)
	return string(data)
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	release := gateOpen(t)
	s, err := New(path)
	testutil.AssertNoError(t, err)
	ev := watch(s)
	release()

	s.Write([]byte("hello "), nil)
	_, err = s.WriteString("world", "", nil)
	testutil.AssertNoError(t, err)
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), "hello world")
	testutil.AssertEqual(t, s.BytesWritten(), int64(11))
	testutil.AssertEqual(t, s.Closed(), true)
	testutil.AssertEqual(t, s.Pending(), false)
	testutil.AssertEqual(t, s.Path(), path)
	testutil.AssertEqual(t, s.Name(), "out.txt")

	log := ev.snapshot()
	testutil.AssertEqual(t, log[0], "open")
	testutil.AssertEqual(t, log[1], "ready")
	testutil.AssertEqual(t, log[len(log)-1], "close")
}

func TestDeferredWriteAtStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("XXXXXXXXXX"), 0o644))

	release := gateOpen(t)
	start := int64(5)
	config := DefaultConfig()
	config.Path = path
	config.Flags = "r+"
	config.Start = &start

	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	ev := watch(s)
	testutil.AssertEqual(t, s.Pending(), true)

	fds := make(chan interface{}, 1)
	s.Once(writer.SignalOpen, func(e writer.Event) { fds <- e.Value })

	s.Write([]byte("abc"), func(err error) {
		if err != nil {
			ev.add("failed")
			return
		}
		ev.add("written")
	})
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, s.BytesWritten(), int64(0))
	testutil.AssertEqual(t, s.WritableLength(), 3)

	release()
	testutil.AssertEventually(t, func() bool { return s.BytesWritten() == 3 })
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), "XXXXXabcXX")
	testutil.AssertEqual(t, s.BytesWritten(), int64(3))

	log := ev.snapshot()
	testutil.AssertEqual(t, log[0], "open")
	testutil.AssertEqual(t, log[1], "ready")
	testutil.AssertEqual(t, log[2], "written")

	fd := <-fds
	if _, ok := fd.(uintptr); !ok {
		t.Fatalf("open signal carried %T, want uintptr", fd)
	}
}

func TestPositionalBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.bin")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(strings.Repeat(".", 20)), 0o644))

	start := int64(2)
	config := DefaultConfig()
	config.Path = path
	config.Flags = "r+"
	config.Start = &start

	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)

	s.Cork()
	s.Write([]byte("aa"), nil)
	s.Write([]byte("bb"), nil)
	s.Write([]byte("cc"), nil)
	s.Uncork()
	s.Write([]byte("dd"), nil)
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), "..aabbccdd..........")
	testutil.AssertEqual(t, s.BytesWritten(), int64(8))
}

func TestSequentialBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.txt")
	s, err := New(path)
	testutil.AssertNoError(t, err)

	var want strings.Builder
	for i := 0; i < 3; i++ {
		s.Cork()
		for j := 0; j < 10; j++ {
			line := strings.Repeat(string(rune('a'+i)), j+1) + "\n"
			want.WriteString(line)
			s.Write([]byte(line), nil)
		}
		s.Uncork()
	}
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), want.String())
	testutil.AssertEqual(t, s.BytesWritten(), int64(want.Len()))
}

func TestAppendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	start := int64(0)
	config := DefaultConfig()
	config.Path = path
	config.Flags = "a"
	config.Start = &start

	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	s.Write([]byte("second\n"), nil)
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), "first\nsecond\n")
}

func TestExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "given.txt")
	f, err := os.Create(path)
	testutil.AssertNoError(t, err)

	config := DefaultConfig()
	config.File = f
	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	ev := watch(s)

	testutil.AssertEqual(t, s.Pending(), false)
	testutil.AssertEqual(t, s.Path(), path)

	s.Write([]byte("payload"), nil)
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, readFile(t, path), "payload")
	testutil.AssertEqual(t, s.Closed(), true)
	for _, name := range ev.snapshot() {
		testutil.AssertNotEqual(t, name, "open")
	}
}

func TestEndBeforeOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	release := gateOpen(t)

	s, err := New(path)
	testutil.AssertNoError(t, err)
	ev := watch(s)

	s.End(nil)
	time.Sleep(10 * time.Millisecond)
	testutil.AssertEqual(t, s.Finished(), false)

	release()
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, s.Finished(), true)
	testutil.AssertEqual(t, s.Closed(), true)
	testutil.AssertEqual(t, readFile(t, path), "")
	testutil.AssertEqual(t, s.BytesWritten(), int64(0))

	log := ev.snapshot()
	testutil.AssertEqual(t, log[0], "open")
	testutil.AssertEqual(t, log[1], "ready")
	testutil.AssertEqual(t, log[2], "finish")
}

func TestOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	release := gateOpen(t)
	s, err := New(path)
	testutil.AssertNoError(t, err)
	ev := watch(s)
	release()

	testutil.WaitClosed(t, s.Done())

	errs := ev.errors()
	testutil.AssertEqual(t, len(errs), 1)
	testutil.AssertErrorIs(t, errs[0], os.ErrNotExist)
	testutil.AssertEqual(t, s.Destroyed(), true)
	testutil.AssertEqual(t, s.Closed(), false)
}

func TestEndBeforeOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	release := gateOpen(t)

	s, err := New(path)
	testutil.AssertNoError(t, err)
	ev := watch(s)

	results := make(chan error, 1)
	s.End(func(err error) { results <- err })
	release()

	select {
	case err := <-results:
		testutil.AssertErrorIs(t, err, os.ErrNotExist)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("end callback never ran")
	}
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, s.Finished(), true)
	testutil.AssertEqual(t, s.Destroyed(), true)
	testutil.AssertEqual(t, len(ev.errors()), 1)

	log := ev.snapshot()
	testutil.AssertEqual(t, strings.Join(log, ","), "finish,error,close")
}

func TestOpenFailure_HeldWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	release := gateOpen(t)

	s, err := New(path)
	testutil.AssertNoError(t, err)
	ev := watch(s)

	results := make(chan error, 1)
	s.Write([]byte("lost"), func(err error) { results <- err })
	release()

	select {
	case err := <-results:
		testutil.AssertErrorIs(t, err, os.ErrNotExist)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("held write never completed")
	}
	testutil.WaitClosed(t, s.Done())
	testutil.AssertEqual(t, len(ev.errors()), 1)
}

func TestOpenFailure_AutoCloseOnly(t *testing.T) {
	tests := []struct {
		name string
		held bool
	}{
		{"no held write", false},
		{"held write", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Path = filepath.Join(t.TempDir(), "missing", "out.txt")
			config.Writer.AutoDestroy = false
			release := gateOpen(t)

			s, err := NewWithConfig(config)
			testutil.AssertNoError(t, err)
			ev := watch(s)

			results := make(chan error, 1)
			if tt.held {
				s.Write([]byte("lost"), func(err error) { results <- err })
			}
			release()

			if tt.held {
				select {
				case err := <-results:
					testutil.AssertErrorIs(t, err, os.ErrNotExist)
				case <-time.After(testutil.TestTimeout):
					t.Fatal("held write never completed")
				}
			}
			testutil.WaitClosed(t, s.Done())

			errs := ev.errors()
			testutil.AssertEqual(t, len(errs), 1)
			testutil.AssertErrorIs(t, errs[0], os.ErrNotExist)
			testutil.AssertEqual(t, s.Destroyed(), true)
			testutil.AssertEqual(t, strings.Join(ev.snapshot(), ","), "error,close")
		})
	}
}

func TestAutoClose(t *testing.T) {
	tests := []struct {
		name       string
		autoClose  bool
		wantClosed bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "readonly.txt")
			testutil.AssertNoError(t, os.WriteFile(path, []byte("x"), 0o644))

			config := DefaultConfig()
			config.Path = path
			config.Flags = "r"
			config.AutoClose = tt.autoClose
			config.Writer.AutoDestroy = false

			s, err := NewWithConfig(config)
			testutil.AssertNoError(t, err)
			ev := watch(s)

			s.Write([]byte("denied"), nil)
			testutil.AssertEventually(t, func() bool { return len(ev.errors()) == 1 })

			if tt.wantClosed {
				testutil.WaitClosed(t, s.Done())
			} else {
				time.Sleep(20 * time.Millisecond)
			}
			testutil.AssertEqual(t, s.Closed(), tt.wantClosed)
			testutil.AssertEqual(t, s.Destroyed(), tt.wantClosed)

			if !tt.wantClosed {
				testutil.AssertNoError(t, s.Destroy(nil, nil))
				testutil.WaitClosed(t, s.Done())
				testutil.AssertEqual(t, s.Closed(), true)
			}
		})
	}
}

func TestDestroy_ClosesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "destroy.txt")
	release := gateOpen(t)
	s, err := New(path)
	testutil.AssertNoError(t, err)

	opened := make(chan struct{})
	s.Once(writer.SignalReady, func(writer.Event) { close(opened) })
	release()
	testutil.WaitClosed(t, opened)

	boom := errors.New("abort")
	done := make(chan error, 1)
	testutil.AssertNoError(t, s.Destroy(boom, func(err error) { done <- err }))
	testutil.AssertErrorIs(t, <-done, boom)
	testutil.WaitClosed(t, s.Done())

	testutil.AssertEqual(t, s.Closed(), true)
	testutil.AssertErrorIs(t, s.Destroy(nil, nil), sferrors.ErrDestroyed)
}

func TestNewWithConfig_Invalid(t *testing.T) {
	negative := int64(-1)
	tooLarge := int64(1 << 53)

	tests := []struct {
		name      string
		configure func(*Config)
		want      error
	}{
		{"empty path", func(c *Config) { c.Path = "" }, sferrors.ErrInvalidConfiguration},
		{"negative start", func(c *Config) { c.Start = &negative }, sferrors.ErrOutOfRange},
		{"start above max safe integer", func(c *Config) { c.Start = &tooLarge }, sferrors.ErrOutOfRange},
		{"unknown flags", func(c *Config) { c.Flags = "rw" }, sferrors.ErrInvalidConfiguration},
		{"negative high-water mark", func(c *Config) { c.Writer.HighWaterMark = -5 }, sferrors.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Path = filepath.Join(t.TempDir(), "never.txt")
			tt.configure(&config)

			s, err := NewWithConfig(config)
			testutil.AssertErrorIs(t, err, tt.want)
			if s != nil {
				t.Fatal("expected nil sink on error")
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := DefaultConfig()
	config.Path = filepath.Join(t.TempDir(), "metered.txt")
	config.Writer.Name = "metered"
	config.Writer.Metrics = metrics.NewRegistry(reg)

	s, err := NewWithConfig(config)
	testutil.AssertNoError(t, err)
	s.Write([]byte("12345"), nil)
	s.End(nil)
	testutil.WaitClosed(t, s.Done())

	m := config.Writer.Metrics
	testutil.AssertEqual(t, promtest.ToFloat64(m.FileSinkOpens.WithLabelValues("metered", "ok")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(m.FileSinkCloses.WithLabelValues("metered", "ok")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(m.WriterBytesWritten.WithLabelValues("metered")), 5.0)
	testutil.AssertEqual(t, promtest.ToFloat64(m.WriterLifecycle.WithLabelValues("metered", "finish")), 1.0)
}

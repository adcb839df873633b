package writer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/sinkflow/internal/testutil"
	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

func TestIOWriter_Copy(t *testing.T) {
	sink := testutil.NewMockSink()
	w := newTestWriter(t, sink, func(c *Config) { c.HighWaterMark = 16 })

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	iw := NewIOWriter(ctx, w)

	input := strings.Repeat("0123456789", 100)
	n, err := io.CopyBuffer(iw, strings.NewReader(input), make([]byte, 7))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, int64(len(input)))
	testutil.AssertNoError(t, iw.Close())

	testutil.AssertEqual(t, sink.String(), input)
	testutil.AssertEqual(t, w.Finished(), true)
	testutil.AssertEqual(t, sink.Overlaps(), 0)
}

func TestIOWriter_BlocksUntilDrain(t *testing.T) {
	sink := testutil.NewMockSink()
	sink.Hold()
	w := newTestWriter(t, sink, func(c *Config) { c.HighWaterMark = 4 })

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	iw := NewIOWriter(ctx, w)

	returned := make(chan error, 1)
	go func() {
		_, err := iw.Write([]byte("too big"))
		returned <- err
	}()

	select {
	case <-returned:
		t.Fatal("Write returned before drain")
	case <-time.After(20 * time.Millisecond):
	}

	sink.ReleaseAll()
	select {
	case err := <-returned:
		testutil.AssertNoError(t, err)
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Write did not return after drain")
	}
}

func TestIOWriter_ContextCancel(t *testing.T) {
	sink := testutil.NewMockSink()
	sink.Hold()
	w := newTestWriter(t, sink, func(c *Config) { c.HighWaterMark = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	iw := NewIOWriter(ctx, w)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	n, err := iw.Write([]byte("blocked"))
	testutil.AssertErrorIs(t, err, context.Canceled)
	testutil.AssertEqual(t, n, 7)
	sink.ReleaseAll()
}

func TestIOWriter_ReportsSinkErrors(t *testing.T) {
	boom := errors.New("sink broke")
	sink := testutil.NewMockSink()
	sink.SetAlwaysError(boom)
	w := newTestWriter(t, sink, nil)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	iw := NewIOWriter(ctx, w)

	_, err := iw.Write([]byte("data"))
	testutil.AssertNoError(t, err)
	testutil.WaitClosed(t, w.Done())

	_, err = iw.Write([]byte("more"))
	testutil.AssertErrorIs(t, err, boom)
	testutil.AssertErrorIs(t, iw.Close(), boom)
}

func TestIOWriter_WriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWriter(t, FromWriter(&buf), nil)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	iw := NewIOWriter(ctx, w)

	_, err := iw.Write([]byte("once"))
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, iw.Close())

	_, err = iw.Write([]byte("twice"))
	testutil.AssertErrorIs(t, err, sferrors.ErrWriteAfterEnd)
	testutil.AssertEqual(t, buf.String(), "once")
}

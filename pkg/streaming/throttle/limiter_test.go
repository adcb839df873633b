package throttle

import (
	"testing"
	"time"

	"github.com/vnykmshr/sinkflow/internal/testutil"
)

func TestNewLimiter_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		burst int
	}{
		{"zero rate", 0, 10},
		{"negative rate", -1, 10},
		{"zero burst", 100, 0},
		{"negative burst", 100, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLimiter(tt.rate, tt.burst, nil)
			testutil.AssertError(t, err)
		})
	}
}

func TestLimiter_Reserve(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	l, err := NewLimiter(100, 50, clock)
	testutil.AssertNoError(t, err)

	// The bucket starts full.
	testutil.AssertEqual(t, l.Reserve(50), time.Duration(0))
	testutil.AssertEqual(t, l.Tokens(), 0.0)

	// 25 bytes of debt take a quarter second at 100 B/s.
	testutil.AssertEqual(t, l.Reserve(25), 250*time.Millisecond)
	testutil.AssertEqual(t, l.Tokens(), -25.0)

	clock.Advance(250 * time.Millisecond)
	testutil.AssertEqual(t, l.Tokens(), 0.0)

	clock.Advance(time.Second)
	testutil.AssertEqual(t, l.Tokens(), 50.0)
}

func TestLimiter_ReserveLargerThanBurst(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	l, err := NewLimiter(1000, 100, clock)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, l.Reserve(600), 500*time.Millisecond)
	testutil.AssertEqual(t, l.Reserve(0), time.Duration(0))
}

func TestLimiter_Refund(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	l, err := NewLimiter(10, 20, clock)
	testutil.AssertNoError(t, err)

	l.Reserve(30)
	testutil.AssertEqual(t, l.Tokens(), -10.0)
	l.Refund(15)
	testutil.AssertEqual(t, l.Tokens(), 5.0)

	// Refunds never exceed the burst size.
	l.Refund(100)
	testutil.AssertEqual(t, l.Tokens(), 20.0)
}

func TestLimiter_SetRate(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	l, err := NewLimiter(10, 100, clock)
	testutil.AssertNoError(t, err)

	l.Reserve(100)
	clock.Advance(time.Second)
	testutil.AssertEqual(t, l.Tokens(), 10.0)

	l.SetRate(50)
	testutil.AssertEqual(t, l.Rate(), 50.0)
	clock.Advance(time.Second)
	testutil.AssertEqual(t, l.Tokens(), 60.0)

	l.SetRate(0)
	testutil.AssertEqual(t, l.Rate(), 50.0)
	testutil.AssertEqual(t, l.Burst(), 100)
}

package throttle

import (
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Limiter is a token bucket measured in bytes. Reservations always succeed:
// a reservation larger than the available tokens puts the bucket in debt
// and reports how long the caller must wait for the debt to be repaid.
type Limiter struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// NewLimiter creates a Limiter refilling rate bytes per second up to burst
// bytes. The bucket starts full.
func NewLimiter(rate float64, burst int, clock Clock) (*Limiter, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, errors.NewValidationError("throttle", "bytesPerSecond", rate, "rate must be a positive finite number").
			WithHint("use a writer without throttling for unlimited rates")
	}
	if burst <= 0 {
		return nil, errors.NewValidationError("throttle", "burst", burst, "burst must be positive").
			WithHint("burst determines how many bytes can be written without delay")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: clock.Now(),
		clock:      clock,
	}, nil
}

// Reserve takes n bytes from the bucket and returns how long the caller
// must wait before using them.
func (l *Limiter) Reserve(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.updateTokens(now)

	l.tokens -= float64(n) // Can go negative
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * -l.tokens / l.rate)
}

// Refund returns n unused bytes to the bucket.
func (l *Limiter) Refund(n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	l.tokens = math.Min(l.tokens+float64(n), float64(l.burst))
}

// SetRate changes the refill rate. Non-positive rates are ignored.
func (l *Limiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	l.rate = rate
}

// Rate returns the refill rate in bytes per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Burst returns the bucket capacity in bytes.
func (l *Limiter) Burst() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burst
}

// Tokens returns the bytes currently available; negative while in debt.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	return l.tokens
}

// updateTokens adds tokens based on the time elapsed since the last update.
func (l *Limiter) updateTokens(now time.Time) {
	elapsed := now.Sub(l.lastUpdate)
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*l.rate, float64(l.burst))
	l.lastUpdate = now
}

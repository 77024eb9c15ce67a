package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one rate-limited request
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the category has a token again. Zero
	// when Allowed.
	RetryAfter time.Duration
}

// Limiter spreads requestsPerHour over the hour for each category, with
// burst requests allowed back to back. Denied requests consume nothing.
type Limiter struct {
	gates *gates
	clock func() time.Time
}

// NewLimiter creates a per-category limiter
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		gates: newGates(rate.Limit(float64(requestsPerHour)/3600.0), burst),
		clock: time.Now,
	}
}

// Reserve takes a token for category if one is available now, and says
// when the next one will be otherwise.
func (l *Limiter) Reserve(category string) Decision {
	gate := l.gates.get(category)
	now := l.clock()

	r := gate.ReserveN(now, 1)
	if !r.OK() {
		return Decision{}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: ceilSecond(delay)}
	}
	return Decision{Allowed: true, Remaining: int(gate.TokensAt(now))}
}

func ceilSecond(d time.Duration) time.Duration {
	return (d + time.Second - 1).Truncate(time.Second)
}

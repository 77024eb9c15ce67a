package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSnapshotInterval is the minimum spacing between two visible-area
// snapshots of the same target.
const DefaultSnapshotInterval = 650 * time.Millisecond

// Throttle is a process-wide minimum-interval gate keyed by capture target.
// Callers that arrive early are delayed for the remainder of the interval,
// never rejected.
type Throttle struct {
	gates *gates
	clock func() time.Time
	sleep func(context.Context, time.Duration) error
}

// ThrottleOption customizes a Throttle
type ThrottleOption func(*Throttle)

// WithClock replaces time.Now
func WithClock(clock func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.clock = clock }
}

// WithSleeper replaces the context-aware sleep used for delays
func WithSleeper(sleep func(context.Context, time.Duration) error) ThrottleOption {
	return func(t *Throttle) { t.sleep = sleep }
}

// NewThrottle creates a throttle allowing one snapshot per interval per target
func NewThrottle(interval time.Duration, opts ...ThrottleOption) *Throttle {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	t := &Throttle{
		gates: newGates(rate.Every(interval), 1),
		clock: time.Now,
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Wait blocks until target may take its next snapshot and returns how long
// it waited. A cancelled context gives the slot back.
func (t *Throttle) Wait(ctx context.Context, target string) (time.Duration, error) {
	gate := t.gates.get(target)

	now := t.clock()
	reservation := gate.ReserveN(now, 1)
	// Ceil to the millisecond; the limiter's float math can land a hair short.
	delay := ceilMillisecond(reservation.DelayFrom(now))
	if delay <= 0 {
		return 0, nil
	}
	if err := t.sleep(ctx, delay); err != nil {
		reservation.CancelAt(t.clock())
		return 0, err
	}
	return delay, nil
}

// Forget drops the gate for a target that will not be captured again
func (t *Throttle) Forget(target string) {
	t.gates.forget(target)
}

// Tracked reports how many targets currently hold a gate
func (t *Throttle) Tracked() int {
	return t.gates.len()
}

func ceilMillisecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

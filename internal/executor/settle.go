package executor

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultSettleDelay lets deferred rendering catch up after each scroll.
	DefaultSettleDelay = 700 * time.Millisecond
	// DefaultSettleTimeout bounds the per-frame stability check.
	DefaultSettleTimeout = 1500 * time.Millisecond
	// DefaultStableFrames is how many consecutive frames must match the target.
	DefaultStableFrames = 2
	// DefaultTolerance is the accepted scroll drift in CSS pixels.
	DefaultTolerance = 1.0
)

// Position is a scroll offset in CSS pixels
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Settler polls a scroll position once per frame until it has matched the
// target for StableFrames consecutive frames or Timeout elapses.
type Settler struct {
	StableFrames int
	Tolerance    float64
	Timeout      time.Duration
	Now          func() time.Time
}

// Wait reports whether the position settled. Running out of time is not an
// error; only sampling failures and ctx are.
func (s Settler) Wait(ctx context.Context, target Position, sample func(context.Context) (Position, error), frame func(context.Context) error) (bool, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	need := max(1, s.StableFrames)
	start := now()

	stable := 0
	for {
		if err := frame(ctx); err != nil {
			return false, err
		}
		pos, err := sample(ctx)
		if err != nil {
			return false, err
		}

		if math.Abs(pos.X-target.X) <= s.Tolerance && math.Abs(pos.Y-target.Y) <= s.Tolerance {
			stable++
			if stable >= need {
				return true, nil
			}
		} else {
			stable = 0
		}

		if now().Sub(start) > s.Timeout {
			return false, nil
		}
	}
}

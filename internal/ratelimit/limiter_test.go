package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstPerCategory(t *testing.T) {
	l := NewLimiter(100, 2)
	now := time.Unix(1_700_000_000, 0)
	l.clock = func() time.Time { return now }

	if d := l.Reserve("cat-a"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("first = %+v, want allowed with 1 left", d)
	}
	if d := l.Reserve("cat-a"); !d.Allowed || d.Remaining != 0 {
		t.Fatalf("second = %+v, want allowed with 0 left", d)
	}
	if d := l.Reserve("cat-b"); !d.Allowed {
		t.Error("other category should have its own bucket")
	}
}

func TestLimiterRetryAfter(t *testing.T) {
	// 3600/hour is one token a second.
	l := NewLimiter(3600, 1)
	now := time.Unix(1_700_000_000, 0)
	l.clock = func() time.Time { return now }

	l.Reserve("bugs")
	d := l.Reserve("bugs")
	if d.Allowed || d.RetryAfter != time.Second {
		t.Fatalf("denied = %+v, want RetryAfter 1s", d)
	}

	// A denial consumes nothing, and partial waits round up.
	now = now.Add(400 * time.Millisecond)
	if d := l.Reserve("bugs"); d.Allowed || d.RetryAfter != time.Second {
		t.Fatalf("after 400ms = %+v, want RetryAfter 1s", d)
	}
	now = now.Add(600 * time.Millisecond)
	if d := l.Reserve("bugs"); !d.Allowed {
		t.Fatalf("after 1s = %+v, want allowed", d)
	}
}

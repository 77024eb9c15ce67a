// Package session owns in-flight capture sessions: the composite surface,
// the session deadline and the single terminal result.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/pagestitch/internal/composite"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// Result is the terminal outcome of a session: an encoded image or an error.
type Result struct {
	Image string
	Err   error
}

// Session is one capture in flight for one tab.
type Session struct {
	id        string
	tabID     string
	startedAt time.Time
	expiresAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	once   sync.Once
	done   chan struct{}

	mu         sync.Mutex
	compositor *composite.Compositor
	status     models.SessionStatus
	slices     int
	progress   float64
	errMsg     string
	result     Result
}

func newSession(tabID string, deadline time.Duration) *Session {
	now := time.Now()
	ctx, cancel := context.WithDeadline(context.Background(), now.Add(deadline))
	return &Session{
		id:         uuid.New().String(),
		tabID:      tabID,
		startedAt:  now,
		expiresAt:  now.Add(deadline),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		compositor: composite.New(),
		status:     models.StatusRunning,
	}
}

// ID returns the session ID
func (s *Session) ID() string { return s.id }

// TabID returns the capture target
func (s *Session) TabID() string { return s.tabID }

// Context is cancelled when the session fails or times out, and by Release.
func (s *Session) Context() context.Context { return s.ctx }

// Release cancels the session context. Call it once the page side has
// answered START_CAPTURE.
func (s *Session) Release() { s.cancel() }

// Done is closed once the result is available.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session completes, fails or times out.
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result.Image, s.result.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Info returns the public view of the session
func (s *Session) Info() models.Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Capture{
		ID:        s.id,
		TabID:     s.tabID,
		Status:    s.status,
		StartedAt: s.startedAt,
		ExpiresAt: s.expiresAt,
		Slices:    s.slices,
		Progress:  s.progress,
		Error:     s.errMsg,
	}
}

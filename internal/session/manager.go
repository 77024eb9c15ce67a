package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

const (
	// DefaultDeadline bounds a whole capture session
	DefaultDeadline = 60 * time.Second
	// DefaultQuality is the JPEG quality for snapshots and the composite
	DefaultQuality = 85
	// DefaultMaxConcurrent caps sessions across all tabs
	DefaultMaxConcurrent = 4
)

var (
	ErrSessionActive = errors.New("capture already in progress")
	ErrNoSession     = errors.New("no active capture session")
	ErrTimeout       = errors.New("capture timed out")
	ErrSnapshot      = errors.New("snapshot failed")
	ErrConcurrency   = errors.New("capture concurrency limit reached")
)

// Snapshotter is the visible-area snapshot primitive. It can only render
// what the tab currently shows.
type Snapshotter interface {
	CaptureVisibleArea(ctx context.Context, tabID string, opts SnapshotOptions) ([]byte, error)
}

// SnapshotOptions selects the encoding of a snapshot
type SnapshotOptions struct {
	Format  string
	Quality int
}

// Options configure a Manager
type Options struct {
	Deadline      time.Duration
	Quality       int
	MaxConcurrent int64
	Throttle      *ratelimit.Throttle
	Decode        func([]byte) (image.Image, error)
}

// Manager is the session registry: at most one capture session per tab,
// created, looked up and destroyed atomically.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	snapshotter Snapshotter
	throttle    *ratelimit.Throttle
	slots       *semaphore.Weighted
	deadline    time.Duration
	quality     int
	decode      func([]byte) (image.Image, error)
}

// NewManager creates a new session manager
func NewManager(snapshotter Snapshotter, opts Options) *Manager {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Throttle == nil {
		opts.Throttle = ratelimit.NewThrottle(ratelimit.DefaultSnapshotInterval)
	}
	if opts.Decode == nil {
		opts.Decode = decodeImage
	}

	return &Manager{
		sessions:    make(map[string]*Session),
		snapshotter: snapshotter,
		throttle:    opts.Throttle,
		slots:       semaphore.NewWeighted(opts.MaxConcurrent),
		deadline:    opts.Deadline,
		quality:     opts.Quality,
		decode:      opts.Decode,
	}
}

// Create starts a session for tabID. It fails if the tab already has one.
func (m *Manager) Create(tabID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[tabID]; exists {
		return nil, fmt.Errorf("%w for tab %s", ErrSessionActive, tabID)
	}
	if !m.slots.TryAcquire(1) {
		return nil, ErrConcurrency
	}

	s := newSession(tabID, m.deadline)
	s.timer = time.AfterFunc(m.deadline, func() {
		m.finish(s, Result{Err: ErrTimeout}, models.StatusTimedOut)
	})
	m.sessions[tabID] = s

	log.Printf("📸 Capture session %s started for tab %s", shortID(s.id), tabID)
	return s, nil
}

// Lookup returns the active session for tabID
func (m *Manager) Lookup(tabID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tabID]
	return s, ok
}

// List returns all active sessions
func (m *Manager) List() []models.Capture {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	captures := make([]models.Capture, 0, len(active))
	for _, s := range active {
		captures = append(captures, s.Info())
	}
	return captures
}

// Fail terminates the tab's session with err
func (m *Manager) Fail(tabID string, err error) {
	if s, ok := m.Lookup(tabID); ok {
		m.finish(s, Result{Err: err}, models.StatusError)
	}
}

// Destroy tears down the tab's session without a result
func (m *Manager) Destroy(tabID string) {
	m.Fail(tabID, errors.New("capture cancelled"))
}

// Snapshot takes one throttled visible-area snapshot and composites it at
// the slice's offset. Any failure ends the session.
func (m *Manager) Snapshot(ctx context.Context, tabID string, meta models.SliceData) error {
	s, ok := m.Lookup(tabID)
	if !ok {
		return ErrNoSession
	}
	if err := m.snapshot(ctx, s, meta); err != nil {
		m.finish(s, Result{Err: err}, models.StatusError)
		return err
	}
	return nil
}

func (m *Manager) snapshot(ctx context.Context, s *Session, meta models.SliceData) error {
	if err := s.ctx.Err(); err != nil {
		return ErrTimeout
	}
	if _, err := m.throttle.Wait(ctx, s.tabID); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}

	raw, err := m.snapshotter.CaptureVisibleArea(ctx, s.tabID, SnapshotOptions{Format: "jpeg", Quality: m.quality})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	bitmap, err := m.decode(raw)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrSnapshot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compositor == nil {
		return ErrNoSession
	}
	if err := s.compositor.Draw(bitmap, meta); err != nil {
		return err
	}
	s.slices++
	s.progress = meta.Complete
	return nil
}

// Finish encodes the composite, hands it to the session's waiter and tears
// the session down whatever the outcome.
func (m *Manager) Finish(ctx context.Context, tabID string) error {
	s, ok := m.Lookup(tabID)
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	var (
		encoded string
		err     error
	)
	if s.compositor == nil {
		err = ErrNoSession
	} else {
		encoded, err = s.compositor.Encode(m.quality)
	}
	s.mu.Unlock()

	if err != nil {
		m.finish(s, Result{Err: err}, models.StatusError)
		return err
	}
	m.finish(s, Result{Image: encoded}, models.StatusCompleted)
	return nil
}

// Handle answers CAPTURE_SLICE and CAPTURE_DONE from the page context.
func (m *Manager) Handle(ctx context.Context, msg models.Message) models.Response {
	switch msg.Type {
	case models.CaptureSlice:
		if msg.Data == nil {
			return models.Fail(errors.New("missing slice data"))
		}
		if err := m.Snapshot(ctx, msg.TabID, *msg.Data); err != nil {
			return models.Fail(err)
		}
		return models.OK()
	case models.CaptureDone:
		if err := m.Finish(ctx, msg.TabID); err != nil {
			return models.Fail(err)
		}
		return models.OK()
	default:
		return models.Fail(fmt.Errorf("unexpected message %s", msg.Type))
	}
}

// finish resolves s exactly once and removes it from the registry
func (m *Manager) finish(s *Session, res Result, status models.SessionStatus) {
	s.once.Do(func() {
		m.mu.Lock()
		if m.sessions[s.tabID] == s {
			delete(m.sessions, s.tabID)
		}
		m.mu.Unlock()
		m.slots.Release(1)

		if s.timer != nil {
			s.timer.Stop()
		}
		// A completed session keeps its context until Release: the page
		// side is still waiting on the CAPTURE_DONE reply under it.
		if status != models.StatusCompleted {
			s.cancel()
		}

		s.mu.Lock()
		if s.compositor != nil {
			s.compositor.Release()
			s.compositor = nil
		}
		s.status = status
		if res.Err != nil {
			s.errMsg = res.Err.Error()
		}
		s.result = res
		slices := s.slices
		s.mu.Unlock()
		close(s.done)

		switch status {
		case models.StatusCompleted:
			log.Printf("✅ Capture session %s completed (%d slices)", shortID(s.id), slices)
		case models.StatusTimedOut:
			log.Printf("⏱️  Capture session %s timed out", shortID(s.id))
		default:
			log.Printf("❌ Capture session %s failed: %v", shortID(s.id), res.Err)
		}
	})
}

func decodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

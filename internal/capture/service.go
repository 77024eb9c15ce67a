// Package capture runs captures end to end: a single visible-area snapshot
// or the stitched full page, optionally followed by delivery and history.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/bridge"
	"github.com/shehryarbajwa/pagestitch/internal/composite"
	"github.com/shehryarbajwa/pagestitch/internal/delivery"
	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/geometry"
	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/internal/session"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

const (
	fileName = "screenshot.jpg"
	fileType = "image/jpeg"
)

// Known errors, most specific first, for rewrapping bridge responses.
var remoteErrors = []error{
	composite.ErrTooLarge,
	composite.ErrEmpty,
	session.ErrSnapshot,
	session.ErrTimeout,
	session.ErrNoSession,
	geometry.ErrNoTarget,
	executor.ErrCaptureInProgress,
	executor.ErrSequence,
}

// Sender delivers START_CAPTURE to the page context
type Sender interface {
	Send(ctx context.Context, msg models.Message) models.Response
}

// TabLookup resolves a tab's current URL and title
type TabLookup interface {
	Get(tabID string) (models.Tab, error)
}

// Deliverer posts a JSON payload to a category endpoint
type Deliverer interface {
	Send(ctx context.Context, endpoint string, payload interface{}) (models.DeliveryResult, error)
}

// Recorder keeps capture-and-send history
type Recorder interface {
	Record(entry models.HistoryEntry) (models.HistoryEntry, error)
}

// Result is a finished capture or send. Delivery and History are set only
// when something was sent to an endpoint.
type Result struct {
	Image      string                 `json:"image,omitempty"`
	Mode       models.CaptureMode     `json:"mode,omitempty"`
	Tab        models.Tab             `json:"tab"`
	CapturedAt time.Time              `json:"capturedAt"`
	SizeBytes  int                    `json:"sizeBytes"`
	Delivery   *models.DeliveryResult `json:"result,omitempty"`
	History    *models.HistoryEntry   `json:"history,omitempty"`
}

// Deps are the collaborators of a Service
type Deps struct {
	Sessions  *session.Manager
	Bus       Sender
	Snapshots session.Snapshotter
	Throttle  *ratelimit.Throttle
	Tabs      TabLookup
	Delivery  Deliverer
	History   Recorder
	Quality   int
}

// Service orchestrates captures
type Service struct {
	sessions  *session.Manager
	bus       Sender
	snapshots session.Snapshotter
	throttle  *ratelimit.Throttle
	tabs      TabLookup
	delivery  Deliverer
	history   Recorder
	quality   int
}

// NewService creates a capture service
func NewService(d Deps) *Service {
	if d.Quality <= 0 {
		d.Quality = session.DefaultQuality
	}
	if d.Throttle == nil {
		d.Throttle = ratelimit.NewThrottle(ratelimit.DefaultSnapshotInterval)
	}
	return &Service{
		sessions:  d.Sessions,
		bus:       d.Bus,
		snapshots: d.Snapshots,
		throttle:  d.Throttle,
		tabs:      d.Tabs,
		delivery:  d.Delivery,
		history:   d.History,
		quality:   d.Quality,
	}
}

// CaptureVisible takes one throttled snapshot of what the tab shows
func (s *Service) CaptureVisible(ctx context.Context, tabID string) (string, error) {
	if _, busy := s.sessions.Lookup(tabID); busy {
		return "", session.ErrSessionActive
	}
	if _, err := s.throttle.Wait(ctx, tabID); err != nil {
		return "", err
	}
	raw, err := s.snapshots.CaptureVisibleArea(ctx, tabID, session.SnapshotOptions{Format: "jpeg", Quality: s.quality})
	if err != nil {
		return "", fmt.Errorf("%w: %v", session.ErrSnapshot, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CaptureFullPage opens a session, asks the page context to walk its tiles
// and waits for the stitched image or the first terminal error.
func (s *Service) CaptureFullPage(ctx context.Context, tabID string) (string, error) {
	sess, err := s.sessions.Create(tabID)
	if err != nil {
		return "", err
	}

	// The page side works under the session's context so the deadline
	// stops it too.
	defer sess.Release()
	resp := s.bus.Send(sess.Context(), models.Message{Type: models.StartCapture, TabID: tabID})
	if !resp.OK {
		s.sessions.Fail(tabID, bridge.Rewrap(resp.Error, remoteErrors...))
	}

	image, err := sess.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		s.sessions.Fail(tabID, ctx.Err())
	}
	return image, err
}

// Capture runs req.Mode and, when req.Endpoint is set, delivers the image
// and records the outcome.
func (s *Service) Capture(ctx context.Context, tabID string, req models.CaptureRequest) (Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeVisibleArea
	}

	var (
		image string
		err   error
	)
	switch mode {
	case models.ModeVisibleArea:
		image, err = s.CaptureVisible(ctx, tabID)
	case models.ModeFullPage:
		image, err = s.CaptureFullPage(ctx, tabID)
	default:
		return Result{}, fmt.Errorf("unknown capture mode %q", mode)
	}

	if req.Endpoint == "" {
		if err != nil {
			return Result{}, err
		}
		return s.result(tabID, mode, image), nil
	}

	if err != nil {
		s.record(req.Target(), models.HistoryEntry{CapturedAt: time.Now().UTC()})
		return Result{}, err
	}
	res := s.result(tabID, mode, image)
	if err := s.send(ctx, req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Service) send(ctx context.Context, req models.CaptureRequest, res *Result) error {
	payload := models.DeliveryPayload{
		CategoryID: req.CategoryID,
		Context:    req.Context,
		URL:        res.Tab.URL,
		Title:      res.Tab.Title,
		CapturedAt: res.CapturedAt,
		File: models.DeliveryFile{
			Base64Data: res.Image,
			Name:       fileName,
			Type:       fileType,
			SizeBytes:  res.SizeBytes,
		},
	}
	if err := s.deliver(ctx, req.Target(), payload, res); err != nil {
		return err
	}
	res.Image = ""
	return nil
}

// deliver posts payload to target and records the outcome. A transport
// failure records status 0 with no URL or title.
func (s *Service) deliver(ctx context.Context, target models.Target, payload interface{}, res *Result) error {
	if s.delivery == nil {
		return errors.New("delivery is not configured")
	}

	dr, err := s.delivery.Send(ctx, delivery.BuildEndpoint(target.Endpoint, target.APIKey), payload)
	if err != nil {
		s.record(target, models.HistoryEntry{CapturedAt: res.CapturedAt})
		return err
	}
	res.Delivery = &dr
	res.History = s.record(target, models.HistoryEntry{
		CapturedAt: res.CapturedAt,
		URL:        res.Tab.URL,
		Title:      res.Tab.Title,
		Status:     dr.Status,
		OK:         dr.OK,
	})
	log.Printf("📤 Delivered to category %s for %s (status %d)", target.CategoryID, res.Tab.URL, dr.Status)
	return nil
}

func (s *Service) record(target models.Target, entry models.HistoryEntry) *models.HistoryEntry {
	if s.history == nil {
		return nil
	}
	entry.CategoryID = target.CategoryID
	entry.CategoryName = target.CategoryName
	saved, err := s.history.Record(entry)
	if err != nil {
		log.Printf("⚠️  Failed to record history: %v", err)
		return nil
	}
	return &saved
}

func (s *Service) result(tabID string, mode models.CaptureMode, image string) Result {
	res := Result{
		Image:      image,
		Mode:       mode,
		Tab:        models.Tab{ID: tabID},
		CapturedAt: time.Now().UTC(),
		SizeBytes:  SizeBytes(image),
	}
	if s.tabs != nil {
		if tab, err := s.tabs.Get(tabID); err == nil {
			res.Tab = tab
		}
	}
	return res
}

// SizeBytes estimates the decoded size of a base64 string
func SizeBytes(encoded string) int {
	return (len(encoded)*3 + 3) / 4
}

// Package bridge carries messages between the page context and the session
// owner. Each side registers one handler; nothing else is shared.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// Handler answers messages delivered to one side of the bridge.
type Handler interface {
	Handle(ctx context.Context, msg models.Message) models.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg models.Message) models.Response

// Handle calls f(ctx, msg).
func (f HandlerFunc) Handle(ctx context.Context, msg models.Message) models.Response {
	return f(ctx, msg)
}

// DefaultDrain is how long Send keeps waiting for a reply once ctx ends.
const DefaultDrain = 10 * time.Second

// Bus routes START_CAPTURE to the page side and everything else to the
// session owner. Every message is handled on its own goroutine. A handler
// gets the sender's ctx, and its reply wins over ctx whenever it arrives
// within the drain window, so a sender never moves on while the handler is
// still unwinding.
type Bus struct {
	mu    sync.RWMutex
	page  Handler
	owner Handler
	drain time.Duration
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{drain: DefaultDrain}
}

// SetDrain changes the post-cancellation wait. Zero returns on ctx at once.
func (b *Bus) SetDrain(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drain = max(0, d)
}

// HandlePage registers the page-context handler.
func (b *Bus) HandlePage(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.page = h
}

// HandleOwner registers the session-owner handler.
func (b *Bus) HandleOwner(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = h
}

// Send delivers msg and waits for its response.
func (b *Bus) Send(ctx context.Context, msg models.Message) models.Response {
	h, drain, err := b.route(msg.Type)
	if err != nil {
		return models.Fail(err)
	}

	var data *models.SliceData
	if msg.Data != nil {
		copied := *msg.Data
		if copied.Clip != nil {
			clip := *copied.Clip
			copied.Clip = &clip
		}
		data = &copied
	}
	msg.Data = data

	reply := make(chan models.Response, 1)
	go func() {
		reply <- h.Handle(ctx, msg)
	}()

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
	}

	timer := time.NewTimer(drain)
	defer timer.Stop()
	select {
	case resp := <-reply:
		return resp
	case <-timer.C:
		return models.Fail(ctx.Err())
	}
}

func (b *Bus) route(t models.MessageType) (Handler, time.Duration, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var h Handler
	switch t {
	case models.StartCapture:
		h = b.page
	case models.CaptureSlice, models.CaptureDone:
		h = b.owner
	default:
		return nil, 0, fmt.Errorf("unknown message type %q", t)
	}
	if h == nil {
		return nil, 0, fmt.Errorf("no receiver for %s", t)
	}
	return h, b.drain, nil
}

type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// Rewrap turns an error string received over the bridge back into an error
// that matches the first of known whose message it contains. Order known
// from most to least specific.
func Rewrap(msg string, known ...error) error {
	if msg == "" {
		msg = "Capture failed."
	}
	for _, k := range known {
		if msg == k.Error() {
			return k
		}
		if strings.Contains(msg, k.Error()) {
			return &remoteError{msg: msg, kind: k}
		}
	}
	return errors.New(msg)
}

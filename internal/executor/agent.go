package executor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// PageResolver finds the page driver for a tab
type PageResolver interface {
	Page(tabID string) (Page, error)
}

// Agent is the page-context side of the bridge. It answers START_CAPTURE
// by running one Executor per tab and refuses overlapping captures.
type Agent struct {
	pages  PageResolver
	sender Sender
	cfg    Config

	mu      sync.Mutex
	running map[string]*Executor
}

// NewAgent creates a page-context agent
func NewAgent(pages PageResolver, sender Sender, cfg Config) *Agent {
	return &Agent{
		pages:   pages,
		sender:  sender,
		cfg:     cfg,
		running: make(map[string]*Executor),
	}
}

// Handle runs the capture sequence for msg.TabID and replies when it ends.
func (a *Agent) Handle(ctx context.Context, msg models.Message) models.Response {
	if msg.Type != models.StartCapture {
		return models.Fail(fmt.Errorf("unexpected message %s", msg.Type))
	}
	if err := a.Capture(ctx, msg.TabID); err != nil {
		return models.Fail(err)
	}
	return models.OK()
}

// Capture runs the tile sequence for tabID to completion
func (a *Agent) Capture(ctx context.Context, tabID string) error {
	page, err := a.pages.Page(tabID)
	if err != nil {
		return err
	}

	exec := New(tabID, page, a.sender, a.cfg)
	a.mu.Lock()
	if _, busy := a.running[tabID]; busy {
		a.mu.Unlock()
		return ErrCaptureInProgress
	}
	a.running[tabID] = exec
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.running, tabID)
		a.mu.Unlock()
	}()

	if err := exec.Run(ctx); err != nil {
		log.Printf("❌ Tab %s: capture sequence failed: %v", tabID, err)
		return err
	}
	return nil
}

// Busy reports whether tabID has a capture sequence running
func (a *Agent) Busy(tabID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[tabID]
	return ok
}

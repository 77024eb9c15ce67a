package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/session"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// ErrTabNotFound is returned for unknown tab IDs
var ErrTabNotFound = errors.New("tab not found")

// TabOptions configure new tabs
type TabOptions struct {
	Width             int
	Height            int
	NavigationTimeout time.Duration
}

type tabRecord struct {
	meta models.Tab
	tab  *Tab
}

// Tabs tracks the open tabs of one browser
type Tabs struct {
	mu      sync.RWMutex
	browser *rod.Browser
	opts    TabOptions
	tabs    map[string]*tabRecord
}

// NewTabs creates a tab registry over browser
func NewTabs(browser *rod.Browser, opts TabOptions) *Tabs {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	return &Tabs{
		browser: browser,
		opts:    opts,
		tabs:    make(map[string]*tabRecord),
	}
}

// Open creates a tab, sizes its viewport and loads req.URL
func (t *Tabs) Open(ctx context.Context, req models.OpenTabRequest) (models.Tab, error) {
	if req.URL == "" {
		return models.Tab{}, errors.New("url is required")
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = t.opts.Width
	}
	if height <= 0 {
		height = t.opts.Height
	}

	page, err := t.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return models.Tab{}, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = page.Close()
		return models.Tab{}, fmt.Errorf("set viewport: %w", err)
	}

	nav := page.Context(ctx).Timeout(t.opts.NavigationTimeout)
	if err := nav.Navigate(req.URL); err != nil {
		_ = page.Close()
		return models.Tab{}, fmt.Errorf("navigate to %s: %w", req.URL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		log.Printf("⚠️  %s did not finish loading: %v", req.URL, err)
	}

	meta := models.Tab{
		ID:     uuid.New().String(),
		URL:    req.URL,
		Width:  width,
		Height: height,
		Opened: time.Now(),
	}
	if info, err := page.Info(); err == nil {
		meta.URL = info.URL
		meta.Title = info.Title
	}

	t.mu.Lock()
	t.tabs[meta.ID] = &tabRecord{meta: meta, tab: &Tab{page: page}}
	t.mu.Unlock()

	log.Printf("🗂️  Opened tab %s: %s", shortID(meta.ID), meta.URL)
	return meta, nil
}

// Get returns a tab's metadata with its current URL and title
func (t *Tabs) Get(tabID string) (models.Tab, error) {
	rec, err := t.record(tabID)
	if err != nil {
		return models.Tab{}, err
	}
	meta := rec.meta
	if info, err := rec.tab.page.Info(); err == nil {
		meta.URL = info.URL
		meta.Title = info.Title
	}
	return meta, nil
}

// List returns every open tab
func (t *Tabs) List() []models.Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]models.Tab, 0, len(t.tabs))
	for _, rec := range t.tabs {
		list = append(list, rec.meta)
	}
	return list
}

// Page returns the page driver for a tab
func (t *Tabs) Page(tabID string) (executor.Page, error) {
	rec, err := t.record(tabID)
	if err != nil {
		return nil, err
	}
	return rec.tab, nil
}

// CaptureVisibleArea is the visible-area snapshot primitive
func (t *Tabs) CaptureVisibleArea(ctx context.Context, tabID string, opts session.SnapshotOptions) ([]byte, error) {
	rec, err := t.record(tabID)
	if err != nil {
		return nil, err
	}
	return rec.tab.Snapshot(ctx, opts)
}

// Close closes one tab
func (t *Tabs) Close(tabID string) error {
	t.mu.Lock()
	rec, ok := t.tabs[tabID]
	delete(t.tabs, tabID)
	t.mu.Unlock()

	if !ok {
		return ErrTabNotFound
	}
	if err := rec.tab.page.Close(); err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	log.Printf("🗂️  Closed tab %s", shortID(tabID))
	return nil
}

// CloseAll closes every tab
func (t *Tabs) CloseAll() {
	t.mu.Lock()
	recs := t.tabs
	t.tabs = make(map[string]*tabRecord)
	t.mu.Unlock()

	for _, rec := range recs {
		_ = rec.tab.page.Close()
	}
}

func (t *Tabs) record(tabID string) (*tabRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	return rec, nil
}

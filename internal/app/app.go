// Package app wires the capture pipeline together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/api"
	"github.com/shehryarbajwa/pagestitch/internal/bridge"
	"github.com/shehryarbajwa/pagestitch/internal/browser"
	"github.com/shehryarbajwa/pagestitch/internal/capture"
	"github.com/shehryarbajwa/pagestitch/internal/config"
	"github.com/shehryarbajwa/pagestitch/internal/delivery"
	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/history"
	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/internal/session"
	"github.com/shehryarbajwa/pagestitch/internal/stream"
)

var errShuttingDown = errors.New("capture aborted: server shutting down")

// Backend is the browser side of the pipeline: tab bookkeeping, page
// drivers for the executor, and the visible-area snapshot primitive.
type Backend interface {
	api.TabStore
	executor.PageResolver
	session.Snapshotter
	CloseAll()
}

var errTabClosed = errors.New("capture aborted: tab closed")

// closingBackend drops the per-tab state the pipeline keeps outside the
// browser whenever a tab closes.
type closingBackend struct {
	Backend
	sessions *session.Manager
	throttle *ratelimit.Throttle
}

func (b closingBackend) Close(tabID string) error {
	b.sessions.Fail(tabID, errTabClosed)
	b.throttle.Forget(tabID)
	return b.Backend.Close(tabID)
}

// App holds every long-lived component
type App struct {
	Config   config.Config
	Tabs     Backend
	Sessions *session.Manager
	Bus      *bridge.Bus
	Agent    *executor.Agent
	Hub      *stream.Hub
	History  *history.Store
	Capture  *capture.Service
	Limiter  *ratelimit.Limiter
	Throttle *ratelimit.Throttle

	host *browser.Host
}

// Start launches Chrome per cfg and assembles the pipeline on top of it
func Start(ctx context.Context, cfg config.Config) (*App, error) {
	host, err := browser.Launch(ctx, browser.HostOptions{
		Mode:       cfg.ChromeMode,
		ControlURL: cfg.ChromeURL,
		Headless:   cfg.ChromeHeadless,
	})
	if err != nil {
		return nil, err
	}

	tabs := browser.NewTabs(host.Browser(), browser.TabOptions{
		Width:  cfg.ViewportWidth,
		Height: cfg.ViewportHeight,
	})

	a, err := Assemble(cfg, tabs)
	if err != nil {
		host.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	a.host = host
	return a, nil
}

// Assemble builds the pipeline over an already connected backend
func Assemble(cfg config.Config, tabs Backend) (*App, error) {
	store, err := history.NewStore(cfg.HistoryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	// One throttle per process: visible captures and tile snapshots share
	// the browser's snapshot quota.
	throttle := ratelimit.NewThrottle(cfg.CaptureThrottle)

	sessions := session.NewManager(tabs, session.Options{
		Deadline:      cfg.CaptureTimeout,
		Quality:       cfg.JPEGQuality,
		MaxConcurrent: int64(cfg.MaxConcurrent),
		Throttle:      throttle,
	})

	hub := stream.NewHub()
	bus := bridge.NewBus()

	execCfg := executor.DefaultConfig()
	execCfg.SettleDelay = cfg.SettleDelay
	execCfg.Observe = hub.Publish
	agent := executor.NewAgent(tabs, bus, execCfg)

	bus.HandleOwner(sessions)
	bus.HandlePage(agent)

	svc := capture.NewService(capture.Deps{
		Sessions:  sessions,
		Bus:       bus,
		Snapshots: tabs,
		Throttle:  throttle,
		Tabs:      tabs,
		Delivery: delivery.NewClient(delivery.Options{
			Attempts: cfg.DeliveryAttempts,
			Timeout:  cfg.DeliveryTimeout,
		}),
		History: store,
		Quality: cfg.JPEGQuality,
	})

	return &App{
		Config:   cfg,
		Tabs:     closingBackend{Backend: tabs, sessions: sessions, throttle: throttle},
		Sessions: sessions,
		Bus:      bus,
		Agent:    agent,
		Hub:      hub,
		History:  store,
		Capture:  svc,
		Limiter:  ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst),
		Throttle: throttle,
	}, nil
}

// Router returns the HTTP API
func (a *App) Router() http.Handler {
	h := api.NewHandler(a.Tabs, a.Capture, a.Sessions, a.History, a.Hub)
	return h.SetupRoutes(a.Limiter, a.Config.RateLimitPerHour)
}

// Close fails in-flight sessions, closes every tab and releases Chrome
func (a *App) Close(ctx context.Context) error {
	for _, c := range a.Sessions.List() {
		a.Sessions.Fail(c.TabID, errShuttingDown)
	}
	a.Tabs.CloseAll()

	if a.host == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- a.host.Close(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Printf("⚠️  Chrome did not close before shutdown deadline")
		return ctx.Err()
	}
}

// WriteTimeout covers a full capture plus every delivery attempt
func (a *App) WriteTimeout() time.Duration {
	return a.Config.CaptureTimeout + a.Config.DeliveryTimeout*time.Duration(a.Config.DeliveryAttempts) + 15*time.Second
}

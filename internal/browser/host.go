// Package browser hosts headless Chrome and drives its tabs over the
// DevTools protocol. A tab is a capture target: it runs the page-context
// scripts and provides the visible-area snapshot primitive.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/google/uuid"
)

// Mode selects where Chrome runs
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeDocker Mode = "docker"
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeDocker, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown chrome mode %q (want local, docker or remote)", s)
	}
}

// HostOptions configure Launch
type HostOptions struct {
	Mode Mode
	// ControlURL is the DevTools endpoint for ModeRemote, http or ws.
	ControlURL string
	Headless   bool
}

// Host owns one connected Chrome and whatever process or container backs it
type Host struct {
	id        string
	mode      Mode
	browser   *rod.Browser
	launcher  *launcher.Launcher
	pool      *Pool
	container *Container
}

// Launch starts or connects to Chrome
func Launch(ctx context.Context, opts HostOptions) (*Host, error) {
	h := &Host{id: uuid.New().String(), mode: opts.Mode}

	var (
		controlURL string
		err        error
	)
	switch opts.Mode {
	case ModeLocal, "":
		h.mode = ModeLocal
		h.launcher = launcher.New().Headless(opts.Headless)
		controlURL, err = h.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
	case ModeDocker:
		controlURL, err = h.startContainer(ctx)
		if err != nil {
			return nil, err
		}
	case ModeRemote:
		if opts.ControlURL == "" {
			return nil, errors.New("remote chrome mode needs a control URL")
		}
		controlURL, err = launcher.ResolveURL(opts.ControlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", opts.ControlURL, err)
		}
	default:
		return nil, fmt.Errorf("unknown chrome mode %q", opts.Mode)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		h.teardown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	h.browser = browser

	log.Printf("🌐 Chrome ready (%s mode)", h.mode)
	return h, nil
}

func (h *Host) startContainer(ctx context.Context) (string, error) {
	pool, err := NewPool()
	if err != nil {
		return "", err
	}
	h.pool = pool

	if err := pool.EnsureImage(ctx); err != nil {
		pool.Close()
		return "", fmt.Errorf("failed to ensure chrome image: %w", err)
	}
	c, err := pool.Launch(ctx, h.id)
	if err != nil {
		pool.Close()
		return "", err
	}
	h.container = c
	log.Printf("🐳 Chrome container %s listening on port %s", shortID(c.ID), c.Port)

	controlURL, err := launcher.ResolveURL(c.HTTPURL)
	if err != nil {
		h.teardown(context.WithoutCancel(ctx))
		return "", fmt.Errorf("resolve devtools url: %w", err)
	}
	return controlURL, nil
}

// Browser returns the connected browser
func (h *Host) Browser() *rod.Browser {
	return h.browser
}

// Mode returns where Chrome runs
func (h *Host) Mode() Mode {
	return h.mode
}

// Close disconnects and stops whatever Launch started
func (h *Host) Close(ctx context.Context) error {
	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	h.teardown(ctx)
	return err
}

func (h *Host) teardown(ctx context.Context) {
	if h.launcher != nil {
		h.launcher.Kill()
		h.launcher = nil
	}
	if h.container != nil {
		if err := h.pool.Stop(ctx, h.container.ID); err != nil {
			log.Printf("⚠️  Failed to stop chrome container: %v", err)
		}
		h.container = nil
	}
	if h.pool != nil {
		h.pool.Close()
		h.pool = nil
	}
}

// Package executor walks a capture target through its planned tiles: scroll,
// settle, request a snapshot, and finally ask for the encoded composite.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/geometry"
	"github.com/shehryarbajwa/pagestitch/internal/planner"
	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// restoreTimeout bounds page cleanup once the capture itself is over.
const restoreTimeout = 5 * time.Second

var (
	// ErrSequence is returned when a tile request fails mid-sequence.
	ErrSequence = errors.New("capture sequence aborted")
	// ErrCaptureInProgress is returned when the tab is already being captured.
	ErrCaptureInProgress = errors.New("capture already in progress")
)

// State is the executor's position in the tile sequence
type State int

const (
	StateIdle State = iota
	StateScrolling
	StateSettling
	StateRequesting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScrolling:
		return "scrolling"
	case StateSettling:
		return "settling"
	case StateRequesting:
		return "requesting"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Page is the page-context driver for one tab.
type Page interface {
	// Layout measures the page in one pass.
	Layout(ctx context.Context) (geometry.Layout, error)
	// Prepare forces instant scrolling and hides page overflow for the
	// capture. The returned func puts back every style and scroll offset.
	Prepare(ctx context.Context, target geometry.ScrollTarget) (func(context.Context) error, error)
	ScrollTo(ctx context.Context, target geometry.ScrollTarget, tile planner.Tile) error
	ScrollPosition(ctx context.Context, target geometry.ScrollTarget) (Position, error)
	// NextFrame resolves on the page's next animation frame.
	NextFrame(ctx context.Context) error
}

// Sender delivers a message across the context boundary
type Sender interface {
	Send(ctx context.Context, msg models.Message) models.Response
}

// Progress is reported after every state change
type Progress struct {
	TabID    string  `json:"tabId"`
	State    string  `json:"state"`
	Tile     int     `json:"tile"`
	Tiles    int     `json:"tiles"`
	Complete float64 `json:"complete"`
	Error    string  `json:"error,omitempty"`
}

// Config tunes the executor
type Config struct {
	SettleDelay   time.Duration
	SettleTimeout time.Duration
	StableFrames  int
	Tolerance     float64
	Params        geometry.Params
	Sleep         func(context.Context, time.Duration) error
	Now           func() time.Time
	Observe       func(Progress)
}

// DefaultConfig returns the production settle timings
func DefaultConfig() Config {
	return Config{
		SettleDelay:   DefaultSettleDelay,
		SettleTimeout: DefaultSettleTimeout,
		StableFrames:  DefaultStableFrames,
		Tolerance:     DefaultTolerance,
		Params:        geometry.DefaultParams(),
		Sleep:         ratelimit.Sleep,
		Now:           time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = d.SettleTimeout
	}
	if c.StableFrames <= 0 {
		c.StableFrames = d.StableFrames
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.Params == (geometry.Params{}) {
		c.Params = d.Params
	}
	if c.Sleep == nil {
		c.Sleep = d.Sleep
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	return c
}

// Executor runs one capture sequence for one tab. It is single use.
type Executor struct {
	tabID  string
	page   Page
	sender Sender
	cfg    Config

	mu    sync.Mutex
	state State
}

// New creates an executor for tabID
func New(tabID string, page Page, sender Sender, cfg Config) *Executor {
	return &Executor{
		tabID:  tabID,
		page:   page,
		sender: sender,
		cfg:    cfg.withDefaults(),
		state:  StateIdle,
	}
}

// State returns the current state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run probes, plans and walks every tile in order, one request in flight at
// a time. Page state is restored before Run returns, on every path.
func (e *Executor) Run(ctx context.Context) error {
	layout, err := e.page.Layout(ctx)
	if err != nil {
		return e.fail(0, 0, fmt.Errorf("measure page: %w", err))
	}
	target, err := geometry.Probe(layout, e.cfg.Params)
	if err != nil {
		return e.fail(0, 0, err)
	}
	plan := planner.New(target)
	total := len(plan.Tiles)

	log.Printf("🧭 Tab %s: %d tiles over %dx%d (window=%v, header=%dpx)",
		e.tabID, total, plan.TotalWidth, plan.TotalHeight, plan.UseWindow, target.HeaderHeight)

	restore, err := e.page.Prepare(ctx, target)
	if err != nil {
		return e.fail(0, total, fmt.Errorf("prepare page: %w", err))
	}
	restored := false
	cleanup := func() {
		if restored {
			return
		}
		restored = true
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		if rerr := restore(rctx); rerr != nil {
			log.Printf("⚠️  Tab %s: failed to restore page state: %v", e.tabID, rerr)
		}
	}
	defer cleanup()

	for i, tile := range plan.Tiles {
		complete := float64(i+1) / float64(total)

		e.transition(StateScrolling, i, total, complete)
		if err := e.page.ScrollTo(ctx, target, tile); err != nil {
			return e.fail(i, total, fmt.Errorf("scroll to tile %d: %w", i, err))
		}

		e.transition(StateSettling, i, total, complete)
		pos, err := e.settle(ctx, target, tile)
		if err != nil {
			return e.fail(i, total, fmt.Errorf("settle tile %d: %w", i, err))
		}

		e.transition(StateRequesting, i, total, complete)
		data := sliceData(target, plan, pos, complete)
		resp := e.sender.Send(ctx, models.Message{Type: models.CaptureSlice, TabID: e.tabID, Data: &data})
		if !resp.OK {
			return e.fail(i, total, fmt.Errorf("%w: %s", ErrSequence, failure(resp)))
		}
	}

	e.transition(StateFinalizing, total, total, 1)
	cleanup()
	resp := e.sender.Send(ctx, models.Message{Type: models.CaptureDone, TabID: e.tabID})
	if !resp.OK {
		return e.fail(total, total, fmt.Errorf("%w: %s", ErrSequence, failure(resp)))
	}

	e.transition(StateDone, total, total, 1)
	return nil
}

// settle applies the fixed delay, waits for the scroll position to hold and
// returns the position actually reached.
func (e *Executor) settle(ctx context.Context, target geometry.ScrollTarget, tile planner.Tile) (Position, error) {
	if err := e.cfg.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return Position{}, err
	}

	want := Position{X: float64(tile.X), Y: float64(tile.Y)}
	if !target.UseWindow {
		want.X = 0
	}
	sample := func(ctx context.Context) (Position, error) {
		return e.page.ScrollPosition(ctx, target)
	}
	settler := Settler{
		StableFrames: e.cfg.StableFrames,
		Tolerance:    e.cfg.Tolerance,
		Timeout:      e.cfg.SettleTimeout,
		Now:          e.cfg.Now,
	}
	settled, err := settler.Wait(ctx, want, sample, e.page.NextFrame)
	if err != nil {
		return Position{}, err
	}
	if !settled {
		log.Printf("⏳ Tab %s: scroll to (%d,%d) did not settle, capturing anyway", e.tabID, tile.X, tile.Y)
	}
	return sample(ctx)
}

func (e *Executor) transition(s State, tile, tiles int, complete float64) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	if e.cfg.Observe != nil {
		e.cfg.Observe(Progress{TabID: e.tabID, State: s.String(), Tile: tile, Tiles: tiles, Complete: complete})
	}
}

func (e *Executor) fail(tile, tiles int, err error) error {
	e.mu.Lock()
	e.state = StateFailed
	e.mu.Unlock()

	if e.cfg.Observe != nil {
		e.cfg.Observe(Progress{TabID: e.tabID, State: StateFailed.String(), Tile: tile, Tiles: tiles, Error: err.Error()})
	}
	return err
}

func sliceData(target geometry.ScrollTarget, plan planner.Plan, pos Position, complete float64) models.SliceData {
	data := models.SliceData{
		X:             int(math.Round(pos.X)),
		Y:             int(math.Round(pos.Y)),
		Complete:      complete,
		ViewportWidth: target.ViewportWidth,
		TotalWidth:    plan.TotalWidth,
		TotalHeight:   plan.TotalHeight,
		UseWindow:     target.UseWindow,
		HeaderHeight:  target.HeaderHeight,
	}
	if !target.UseWindow {
		data.X = 0
		if target.Clip != nil {
			clip := *target.Clip
			data.Clip = &clip
		}
	}
	return data
}

func failure(resp models.Response) string {
	if resp.Error == "" {
		return "Capture failed."
	}
	return resp.Error
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/shehryarbajwa/pagestitch/internal/executor"
	"github.com/shehryarbajwa/pagestitch/internal/geometry"
	"github.com/shehryarbajwa/pagestitch/internal/planner"
	"github.com/shehryarbajwa/pagestitch/internal/session"
)

// Tab drives one Chrome page. It implements executor.Page.
type Tab struct {
	page *rod.Page
}

// pageState is what prepareJS saves and restoreJS puts back.
type pageState struct {
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Overflow           string  `json:"overflow"`
	ScrollBehavior     string  `json:"scrollBehavior"`
	BodyOverflowY      string  `json:"bodyOverflowY"`
	BodyScrollBehavior string  `json:"bodyScrollBehavior"`
	TargetScrollTop    float64 `json:"targetScrollTop"`
}

// Layout measures the page in one pass
func (t *Tab) Layout(ctx context.Context) (geometry.Layout, error) {
	var layout geometry.Layout
	if err := t.eval(ctx, &layout, layoutJS, handleAttr); err != nil {
		return geometry.Layout{}, fmt.Errorf("probe layout: %w", err)
	}
	return layout, nil
}

// Prepare forces instant scrolling and hides page overflow
func (t *Tab) Prepare(ctx context.Context, target geometry.ScrollTarget) (func(context.Context) error, error) {
	var saved pageState
	if err := t.eval(ctx, &saved, prepareJS, handleAttr, target.Handle); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		var ok bool
		return t.eval(ctx, &ok, restoreJS, handleAttr, target.Handle, saved)
	}, nil
}

// ScrollTo moves the window or the target element to the tile's offset
func (t *Tab) ScrollTo(ctx context.Context, target geometry.ScrollTarget, tile planner.Tile) error {
	var ok bool
	return t.eval(ctx, &ok, scrollJS, handleAttr, target.Handle, tile.X, tile.Y)
}

// ScrollPosition reads the current scroll offset of the target
func (t *Tab) ScrollPosition(ctx context.Context, target geometry.ScrollTarget) (executor.Position, error) {
	var pos executor.Position
	err := t.eval(ctx, &pos, positionJS, handleAttr, target.Handle)
	return pos, err
}

// NextFrame waits for the page's next animation frame
func (t *Tab) NextFrame(ctx context.Context) error {
	var ok bool
	return t.eval(ctx, &ok, frameJS)
}

// Snapshot renders the currently visible viewport
func (t *Tab) Snapshot(ctx context.Context, opts session.SnapshotOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatJpeg}
	switch opts.Format {
	case "png":
		req.Format = proto.PageCaptureScreenshotFormatPng
	default:
		if opts.Quality > 0 {
			req.Quality = gson.Int(opts.Quality)
		}
	}
	return t.page.Context(ctx).Screenshot(false, req)
}

func (t *Tab) eval(ctx context.Context, out interface{}, js string, args ...interface{}) error {
	res, err := t.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("read script result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

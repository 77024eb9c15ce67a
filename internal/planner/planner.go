// Package planner turns a probed scroll target into an ordered list of
// scroll offsets whose snapshots cover the whole content area.
package planner

import "github.com/shehryarbajwa/pagestitch/internal/geometry"

const (
	// SlicePadding guarantees vertical overlap between consecutive tiles.
	SlicePadding = 40
	// ScrollPad is held back on viewports taller than itself.
	ScrollPad = 200
)

// Tile is one scroll offset to visit, in CSS pixels.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Plan is the ordered tile sequence plus the composite size in CSS pixels.
type Plan struct {
	Tiles       []Tile
	TotalWidth  int
	TotalHeight int
	UseWindow   bool
}

// RowStep is the vertical distance between tile rows for a visible height.
func RowStep(visibleHeight int) int {
	step := visibleHeight - SlicePadding
	if visibleHeight > ScrollPad {
		step -= ScrollPad
	}
	return max(1, step)
}

// New plans tiles top-to-bottom and left-to-right within each row. The last
// tile always sits at max(0, fullHeight-visibleHeight) so the bottom edge is
// captured. The composite size is not bounded here; the compositor enforces
// the canvas limit once the device scale is known.
func New(target geometry.ScrollTarget) Plan {
	fullWidth := target.FullWidth
	fullHeight := target.FullHeight
	visibleHeight := target.VisibleHeight

	yDelta := RowStep(visibleHeight)
	xDelta := max(1, target.VisibleWidth)

	// A 1px overshoot would otherwise produce a sliver second column.
	if fullWidth <= xDelta+1 {
		fullWidth = xDelta
	}

	var tiles []Tile
	for y := 0; y <= fullHeight-visibleHeight; y += yDelta {
		for x := 0; x < fullWidth; x += xDelta {
			tiles = append(tiles, Tile{X: x, Y: y})
		}
	}

	bottom := fullHeight - visibleHeight
	if len(tiles) == 0 || tiles[len(tiles)-1].Y != bottom {
		tiles = append(tiles, Tile{X: 0, Y: max(0, bottom)})
	}

	return Plan{
		Tiles:       tiles,
		TotalWidth:  fullWidth,
		TotalHeight: fullHeight,
		UseWindow:   target.UseWindow,
	}
}

package geometry

import (
	"math"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// Size is a width/height pair in CSS pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is a bounding client rectangle in CSS pixels
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element describes one DOM element as measured inside the page. Handle is
// a stable reference the page driver can resolve back to the element.
type Element struct {
	Handle       string  `json:"handle"`
	Parent       string  `json:"parent,omitempty"`
	Rect         Rect    `json:"rect"`
	ClientWidth  float64 `json:"clientWidth"`
	ClientHeight float64 `json:"clientHeight"`
	ScrollHeight float64 `json:"scrollHeight"`
	Position     string  `json:"position"`
	OverflowY    string  `json:"overflowY"`
	Visibility   string  `json:"visibility"`
	Display      string  `json:"display"`
	ZIndex       int     `json:"zIndex"`
	Modal        bool    `json:"modal"`
	Landmark     bool    `json:"landmark"`
	CanScroll    bool    `json:"canScroll"`
}

// Root describes the document's own scrolling element
type Root struct {
	CanScroll bool      `json:"canScroll"`
	Widths    []float64 `json:"widths"`
	Heights   []float64 `json:"heights"`
}

// Layout is everything the prober needs, collected in one pass over the page.
type Layout struct {
	Viewport Size      `json:"viewport"`
	Root     Root      `json:"root"`
	Elements []Element `json:"elements"`
}

// ScrollTarget identifies what is captured. It is resolved once per session.
type ScrollTarget struct {
	UseWindow bool
	// Handle is empty for window-level capture.
	Handle        string
	FullWidth     int
	FullHeight    int
	VisibleWidth  int
	VisibleHeight int
	// ViewportWidth is the declared viewport width used to derive the
	// device-pixel scale from the first snapshot.
	ViewportWidth int
	Clip          *models.ClipRect
	HeaderHeight  int
}

func clipRect(r Rect) *models.ClipRect {
	return &models.ClipRect{
		X:      max(0, int(math.Floor(r.Left))),
		Y:      max(0, int(math.Floor(r.Top))),
		Width:  int(math.Floor(r.Width)),
		Height: int(math.Floor(r.Height)),
	}
}

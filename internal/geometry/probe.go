package geometry

import (
	"errors"
	"math"
)

// ErrNoTarget is returned when no capturable scroll target can be resolved.
var ErrNoTarget = errors.New("no capturable scroll target found")

// Params holds the tunables of the probe heuristics.
type Params struct {
	MinVisibleSize     float64
	OverlayCoverage    float64
	ScrollableCoverage float64
	ZIndexWeight       float64
	HeaderTopTolerance float64
	HeaderMinCoverage  float64
}

// DefaultParams returns the heuristics used in production.
func DefaultParams() Params {
	return Params{
		MinVisibleSize:     50,
		OverlayCoverage:    0.6,
		ScrollableCoverage: 0.4,
		ZIndexWeight:       1000,
		HeaderTopTolerance: 5,
		HeaderMinCoverage:  0.6,
	}
}

// Probe selects the single region to capture from a measured layout.
//
// The page's root scroller wins when it can actually scroll. Otherwise the
// top-most large modal or overlay is searched for a scrollable descendant,
// falling back to the overlay itself. Without an overlay, content landmarks
// and then every element are searched for a scrollable region.
func Probe(layout Layout, p Params) (ScrollTarget, error) {
	header := HeaderHeight(layout, p)

	if layout.Root.CanScroll {
		return windowTarget(layout, header), nil
	}

	if modal, ok := findModal(layout, p); ok {
		parents := parentIndex(layout)
		if inner, ok := findScrollable(layout, p, func(el Element) bool {
			return isVisible(el, p) && isDescendant(parents, el, modal.Handle)
		}); ok {
			return elementTarget(layout, inner, header), nil
		}
		return elementTarget(layout, modal, header), nil
	}

	if el, ok := findScrollable(layout, p, func(el Element) bool { return el.Landmark }); ok {
		return elementTarget(layout, el, header), nil
	}
	if el, ok := findScrollable(layout, p, func(Element) bool { return true }); ok {
		return elementTarget(layout, el, header), nil
	}
	return ScrollTarget{}, ErrNoTarget
}

// HeaderHeight returns the tallest visible fixed or sticky element pinned
// to the top of the viewport and spanning most of its width.
func HeaderHeight(layout Layout, p Params) int {
	maxHeight := 0.0
	for _, el := range layout.Elements {
		if !isVisible(el, p) {
			continue
		}
		if el.Position != "fixed" && el.Position != "sticky" {
			continue
		}
		nearTop := el.Rect.Top >= -p.HeaderTopTolerance && el.Rect.Top <= p.HeaderTopTolerance
		wide := el.Rect.Width >= layout.Viewport.Width*p.HeaderMinCoverage
		if !nearTop || !wide {
			continue
		}
		maxHeight = math.Max(maxHeight, el.Rect.Height)
	}
	return int(math.Floor(maxHeight))
}

// ScoreOverlay ranks modal and overlay candidates. Z-index only amplifies
// area so a tiny high-z element cannot beat a page-filling one.
func ScoreOverlay(el Element, p Params) float64 {
	return el.Rect.Width*el.Rect.Height + float64(el.ZIndex)*p.ZIndexWeight
}

// ScoreScrollable ranks scrollable candidates.
func ScoreScrollable(el Element) float64 {
	return el.ScrollHeight * el.ClientWidth
}

func windowTarget(layout Layout, header int) ScrollTarget {
	return ScrollTarget{
		UseWindow:     true,
		FullWidth:     int(maxNonZero(layout.Root.Widths)),
		FullHeight:    int(maxNonZero(layout.Root.Heights)),
		VisibleWidth:  int(layout.Viewport.Width),
		VisibleHeight: int(layout.Viewport.Height),
		ViewportWidth: int(layout.Viewport.Width),
		HeaderHeight:  header,
	}
}

func elementTarget(layout Layout, el Element, header int) ScrollTarget {
	return ScrollTarget{
		Handle:        el.Handle,
		FullWidth:     int(el.ClientWidth),
		FullHeight:    int(el.ScrollHeight),
		VisibleWidth:  int(layout.Viewport.Width),
		VisibleHeight: int(el.ClientHeight),
		ViewportWidth: int(layout.Viewport.Width),
		Clip:          clipRect(el.Rect),
		HeaderHeight:  header,
	}
}

func findModal(layout Layout, p Params) (Element, bool) {
	if el, ok := best(layout.Elements, func(el Element) bool {
		return el.Modal && isVisible(el, p)
	}, func(el Element) float64 { return ScoreOverlay(el, p) }); ok {
		return el, true
	}
	return best(layout.Elements, func(el Element) bool {
		if !isVisible(el, p) {
			return false
		}
		if el.Position != "fixed" && el.Position != "absolute" {
			return false
		}
		return el.Rect.Width >= layout.Viewport.Width*p.OverlayCoverage &&
			el.Rect.Height >= layout.Viewport.Height*p.OverlayCoverage
	}, func(el Element) float64 { return ScoreOverlay(el, p) })
}

func findScrollable(layout Layout, p Params, scope func(Element) bool) (Element, bool) {
	return best(layout.Elements, func(el Element) bool {
		return isScrollable(layout, el, p) && scope(el)
	}, ScoreScrollable)
}

func isScrollable(layout Layout, el Element, p Params) bool {
	switch el.OverflowY {
	case "auto", "scroll", "overlay":
	default:
		return false
	}
	bigEnough := el.ClientHeight >= layout.Viewport.Height*p.ScrollableCoverage &&
		el.ClientWidth >= layout.Viewport.Width*p.ScrollableCoverage
	return bigEnough && el.CanScroll
}

func isVisible(el Element, p Params) bool {
	if el.Rect.Width < p.MinVisibleSize || el.Rect.Height < p.MinVisibleSize {
		return false
	}
	return el.Visibility != "hidden" && el.Display != "none"
}

// parentIndex maps each element handle to its parent's handle
func parentIndex(layout Layout) map[string]string {
	parents := make(map[string]string, len(layout.Elements))
	for _, e := range layout.Elements {
		parents[e.Handle] = e.Parent
	}
	return parents
}

func isDescendant(parents map[string]string, el Element, ancestor string) bool {
	seen := make(map[string]bool)
	for cur := el.Parent; cur != "" && !seen[cur]; cur = parents[cur] {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
	}
	return false
}

// best returns the highest-scoring element accepted by keep. Ties keep the
// earliest element in document order.
func best(elements []Element, keep func(Element) bool, score func(Element) float64) (Element, bool) {
	var (
		winner    Element
		bestScore float64
		found     bool
	)
	for _, el := range elements {
		if !keep(el) {
			continue
		}
		s := score(el)
		if !found || s > bestScore {
			winner, bestScore, found = el, s, true
		}
	}
	return winner, found
}

func maxNonZero(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

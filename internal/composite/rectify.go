package composite

import (
	"image"
	"math"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// ClipTolerance is how far, in device pixels, the planned composite width
// may drift from the observed clip width before the observed width wins.
const ClipTolerance = 4

// Placement says which part of a snapshot lands where on the composite.
type Placement struct {
	Src        image.Rectangle
	Dst        image.Point
	Canvas     image.Point
	HeaderCrop int
}

// Scale derives the device-pixel scale from a snapshot's width and the
// declared viewport width.
func Scale(bitmapWidth, viewportWidth int) float64 {
	if viewportWidth <= 0 || bitmapWidth <= 0 || bitmapWidth == viewportWidth {
		return 1
	}
	return float64(bitmapWidth) / float64(viewportWidth)
}

// HeaderCrop returns the device-pixel band to drop from the top of a tile.
// The first row keeps its header; the crop never consumes the whole bitmap.
func HeaderCrop(y, headerHeight, bitmapHeight int, scale float64) int {
	if y <= 0 || headerHeight <= 0 {
		return 0
	}
	crop := scaled(headerHeight, scale)
	if crop > bitmapHeight-1 {
		crop = max(0, bitmapHeight-1)
	}
	return crop
}

// Rectify maps a tile snapshot of the given size into composite coordinates.
// All CSS-to-device conversions floor, so every tile of a session rounds the
// same way.
func Rectify(meta models.SliceData, bitmap image.Point, scale float64) Placement {
	crop := HeaderCrop(meta.Y, meta.HeaderHeight, bitmap.Y, scale)

	if !meta.UseWindow && meta.Clip != nil {
		rectX := scaled(meta.Clip.X, scale)
		rectY := scaled(meta.Clip.Y, scale) + crop
		rectW := scaled(meta.Clip.Width, scale)
		rectH := max(1, scaled(meta.Clip.Height, scale)-crop)

		canvasW := scaled(meta.TotalWidth, scale)
		canvasH := scaled(meta.TotalHeight, scale)
		// Small drift is rounding; past ClipTolerance the element was resized
		// mid-capture and its current width is the truth.
		if canvasW == 0 || abs(canvasW-rectW) > ClipTolerance {
			canvasW = rectW
		}
		if canvasH == 0 {
			canvasH = rectH
		}
		return Placement{
			Src:        image.Rect(rectX, rectY, rectX+rectW, rectY+rectH),
			Dst:        image.Pt(0, scaled(meta.Y, scale)+crop),
			Canvas:     image.Pt(canvasW, canvasH),
			HeaderCrop: crop,
		}
	}

	srcH := max(1, bitmap.Y-crop)
	return Placement{
		Src:        image.Rect(0, crop, bitmap.X, crop+srcH),
		Dst:        image.Pt(scaled(meta.X, scale), scaled(meta.Y, scale)+crop),
		Canvas:     image.Pt(scaled(meta.TotalWidth, scale), scaled(meta.TotalHeight, scale)),
		HeaderCrop: crop,
	}
}

func scaled(v int, scale float64) int {
	return int(math.Floor(float64(v) * scale))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

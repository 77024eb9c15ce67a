// Package composite accumulates viewport snapshots into one oversized image.
package composite

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

// MaxDimension caps either side of the composite, in device pixels.
const MaxDimension = 16000

var (
	// ErrTooLarge is returned when the composite would exceed MaxDimension.
	ErrTooLarge = errors.New("page too large to capture")
	// ErrEmpty is returned when encoding before any tile was drawn.
	ErrEmpty = errors.New("no capture data available")
)

// Compositor owns one composite surface. It is not safe for concurrent use;
// callers serialize Draw calls.
type Compositor struct {
	scale   float64
	surface *image.RGBA
}

// New returns an empty compositor. The surface is allocated by the first Draw.
func New() *Compositor {
	return &Compositor{}
}

// Scale returns the device-pixel scale fixed by the first snapshot, or 0.
func (c *Compositor) Scale() float64 {
	return c.scale
}

// Size returns the composite size in device pixels.
func (c *Compositor) Size() image.Point {
	if c.surface == nil {
		return image.Point{}
	}
	return c.surface.Bounds().Size()
}

// Empty reports whether no surface has been allocated yet.
func (c *Compositor) Empty() bool {
	return c.surface == nil
}

// Draw rectifies one snapshot and writes it into the composite.
func (c *Compositor) Draw(bitmap image.Image, meta models.SliceData) error {
	bounds := bitmap.Bounds()
	if bounds.Empty() {
		return errors.New("empty snapshot")
	}
	if c.scale == 0 {
		c.scale = Scale(bounds.Dx(), meta.ViewportWidth)
	}

	pl := Rectify(meta, bounds.Size(), c.scale)

	if c.surface == nil {
		if pl.Canvas.X > MaxDimension || pl.Canvas.Y > MaxDimension {
			return fmt.Errorf("%w: %dx%d exceeds %dpx", ErrTooLarge, pl.Canvas.X, pl.Canvas.Y, MaxDimension)
		}
		if pl.Canvas.X <= 0 || pl.Canvas.Y <= 0 {
			return fmt.Errorf("invalid composite size %dx%d", pl.Canvas.X, pl.Canvas.Y)
		}
		c.surface = image.NewRGBA(image.Rect(0, 0, pl.Canvas.X, pl.Canvas.Y))
	}

	src := pl.Src.Add(bounds.Min)
	dst := image.Rectangle{Min: pl.Dst, Max: pl.Dst.Add(src.Size())}
	draw.Draw(c.surface, dst, bitmap, src.Min, draw.Src)
	return nil
}

// Encode returns the composite as a base64 JPEG.
func (c *Compositor) Encode(quality int) (string, error) {
	if c.surface == nil {
		return "", ErrEmpty
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.surface, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode composite: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Release drops the surface.
func (c *Compositor) Release() {
	c.surface = nil
}

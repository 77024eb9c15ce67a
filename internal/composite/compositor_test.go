package composite

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/shehryarbajwa/pagestitch/pkg/models"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func windowSlice(y int) models.SliceData {
	return models.SliceData{
		Y:             y,
		ViewportWidth: 100,
		TotalWidth:    100,
		TotalHeight:   150,
		UseWindow:     true,
	}
}

func TestDrawWindowTilesAtScale(t *testing.T) {
	c := New()

	if err := c.Draw(solid(200, 160, red), windowSlice(0)); err != nil {
		t.Fatalf("Draw tile 0: %v", err)
	}
	if c.Scale() != 2 {
		t.Fatalf("Scale = %v, want 2", c.Scale())
	}
	if got := c.Size(); got != image.Pt(200, 300) {
		t.Fatalf("Size = %v, want 200x300", got)
	}
	if err := c.Draw(solid(200, 160, blue), windowSlice(70)); err != nil {
		t.Fatalf("Draw tile 1: %v", err)
	}

	if got := c.surface.RGBAAt(10, 100); got != red {
		t.Errorf("pixel above second tile = %v, want red", got)
	}
	if got := c.surface.RGBAAt(10, 140); got != blue {
		t.Errorf("pixel at second tile = %v, want blue", got)
	}
	if got := c.surface.RGBAAt(199, 299); got != blue {
		t.Errorf("bottom-right pixel = %v, want blue", got)
	}
}

func TestDrawCropsHeaderAfterFirstTile(t *testing.T) {
	c := New()
	first := windowSlice(0)
	first.HeaderHeight = 10
	if err := c.Draw(solid(200, 160, red), first); err != nil {
		t.Fatal(err)
	}

	second := windowSlice(40)
	second.HeaderHeight = 10
	if err := c.Draw(solid(200, 160, green), second); err != nil {
		t.Fatal(err)
	}

	// Tile at y=40css lands at 80px, shifted down by the 20px header band.
	if got := c.surface.RGBAAt(5, 99); got != red {
		t.Errorf("pixel in cropped band = %v, want red", got)
	}
	if got := c.surface.RGBAAt(5, 100); got != green {
		t.Errorf("first pixel of second tile = %v, want green", got)
	}
	if got := c.surface.RGBAAt(5, 239); got != green {
		t.Errorf("last pixel of second tile = %v, want green", got)
	}
	if got := c.surface.RGBAAt(5, 240); got != (color.RGBA{}) {
		t.Errorf("pixel below second tile = %v, want untouched", got)
	}
}

func TestScaleFixedByFirstSnapshot(t *testing.T) {
	c := New()
	if err := c.Draw(solid(200, 160, red), windowSlice(0)); err != nil {
		t.Fatal(err)
	}
	if err := c.Draw(solid(100, 80, red), windowSlice(70)); err != nil {
		t.Fatal(err)
	}
	if c.Scale() != 2 {
		t.Errorf("Scale = %v, want 2", c.Scale())
	}
}

func TestDrawRejectsOversizeBeforeDrawing(t *testing.T) {
	c := New()
	meta := models.SliceData{ViewportWidth: 1000, TotalWidth: 20000, TotalHeight: 3000, UseWindow: true}

	err := c.Draw(solid(1000, 800, red), meta)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if !c.Empty() {
		t.Error("surface allocated despite oversize")
	}
}

func TestDrawClipRegion(t *testing.T) {
	bitmap := solid(1000, 800, red)
	for y := 100; y < 700; y++ {
		for x := 50; x < 950; x++ {
			bitmap.SetRGBA(x, y, green)
		}
	}
	meta := models.SliceData{
		ViewportWidth: 1000,
		TotalWidth:    1000,
		TotalHeight:   3000,
		Clip:          &models.ClipRect{X: 50, Y: 100, Width: 900, Height: 600},
	}

	c := New()
	if err := c.Draw(bitmap, meta); err != nil {
		t.Fatal(err)
	}
	if got := c.Size(); got != image.Pt(900, 3000) {
		t.Fatalf("Size = %v, want observed clip width 900x3000", got)
	}
	if got := c.surface.RGBAAt(0, 0); got != green {
		t.Errorf("origin = %v, want clip content", got)
	}
	if got := c.surface.RGBAAt(899, 599); got != green {
		t.Errorf("clip corner = %v, want clip content", got)
	}
	if got := c.surface.RGBAAt(0, 600); got != (color.RGBA{}) {
		t.Errorf("below first clip = %v, want untouched", got)
	}
}

func TestRectifyClipToleranceKeepsPlannedWidth(t *testing.T) {
	meta := models.SliceData{
		TotalWidth:  903,
		TotalHeight: 1200,
		Clip:        &models.ClipRect{Width: 900, Height: 600},
	}
	pl := Rectify(meta, image.Pt(1000, 800), 1)
	if pl.Canvas.X != 903 {
		t.Errorf("canvas width = %d, want planned 903", pl.Canvas.X)
	}
}

func TestHeaderCropClamped(t *testing.T) {
	if got := HeaderCrop(0, 50, 100, 2); got != 0 {
		t.Errorf("first tile crop = %d, want 0", got)
	}
	if got := HeaderCrop(10, 500, 100, 2); got != 99 {
		t.Errorf("clamped crop = %d, want 99", got)
	}
	pl := Rectify(models.SliceData{Y: 10, HeaderHeight: 500, TotalWidth: 50, TotalHeight: 100, UseWindow: true}, image.Pt(100, 100), 2)
	if pl.Src.Dy() < 1 {
		t.Errorf("source height = %d, want >= 1", pl.Src.Dy())
	}
}

func TestEncode(t *testing.T) {
	c := New()
	if _, err := c.Encode(85); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Encode on empty = %v, want ErrEmpty", err)
	}
	if err := c.Draw(solid(200, 160, red), windowSlice(0)); err != nil {
		t.Fatal(err)
	}

	encoded, err := c.Encode(85)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(200, 300) {
		t.Errorf("encoded size = %v, want 200x300", got)
	}

	c.Release()
	if !c.Empty() {
		t.Error("Release kept the surface")
	}
}

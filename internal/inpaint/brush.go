package inpaint

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/dunamismax/pixelforge/internal/raster"
	"golang.org/x/image/vector"
)

// brushAlpha is the marker value of a single dab, a half-transparent paint.
const brushAlpha = 128

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5522847498

// BrushStroke is one circular dab in mask canvas coordinates.
type BrushStroke struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// MaskCanvas accumulates anti-aliased brush dabs into a marker mask and keeps
// one snapshot for undo.
type MaskCanvas struct {
	mask     *raster.Mask
	snapshot *raster.Mask
	z        *vector.Rasterizer
	paint    image.Image
}

func NewMaskCanvas(width, height int) (*MaskCanvas, error) {
	m, err := raster.NewMask(width, height)
	if err != nil {
		return nil, err
	}
	z := vector.NewRasterizer(width, height)
	z.DrawOp = draw.Over
	return &MaskCanvas{
		mask:  m,
		z:     z,
		paint: image.NewUniform(color.Alpha{A: brushAlpha}),
	}, nil
}

// Snapshot records the current mask so the next Undo can restore it. Call it
// once before each user stroke.
func (c *MaskCanvas) Snapshot() {
	c.snapshot = c.mask.Clone()
}

// Stroke paints one filled circle. Dabs with a non-positive radius are
// ignored.
func (c *MaskCanvas) Stroke(s BrushStroke) {
	if s.Radius <= 0 || c.mask.Width == 0 || c.mask.Height == 0 {
		return
	}

	cx, cy, r := float32(s.X), float32(s.Y), float32(s.Radius)
	k := float32(kappa) * r

	c.z.Reset(c.mask.Width, c.mask.Height)
	c.z.MoveTo(cx+r, cy)
	c.z.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	c.z.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	c.z.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	c.z.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	c.z.ClosePath()

	dst := c.mask.Image()
	c.z.Draw(dst, dst.Bounds(), c.paint, image.Point{})
}

// Paint records a snapshot and applies strokes as one undoable unit.
func (c *MaskCanvas) Paint(strokes []BrushStroke) {
	c.Snapshot()
	for _, s := range strokes {
		c.Stroke(s)
	}
}

// Undo restores the last snapshot. It reports false when there is nothing
// to restore.
func (c *MaskCanvas) Undo() bool {
	if c.snapshot == nil {
		return false
	}
	c.mask = c.snapshot
	c.snapshot = nil
	return true
}

// Clear erases every mark. The cleared state can itself be undone.
func (c *MaskCanvas) Clear() {
	c.Snapshot()
	clear(c.mask.Alpha)
}

// Mask returns a copy of the painted marker plane.
func (c *MaskCanvas) Mask() *raster.Mask {
	return c.mask.Clone()
}

// MaskFromStrokes paints strokes onto a fresh width×height canvas.
func MaskFromStrokes(width, height int, strokes []BrushStroke) (*raster.Mask, error) {
	canvas, err := NewMaskCanvas(width, height)
	if err != nil {
		return nil, err
	}
	canvas.Paint(strokes)
	return canvas.Mask(), nil
}

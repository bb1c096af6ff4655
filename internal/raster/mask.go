package raster

import (
	"fmt"
	"image"
	"image/color"
)

// Mask is a per-pixel marker plane. Zero means unmarked, anything above zero
// is marked. Its size may differ from the buffer it is applied to.
type Mask struct {
	Width  int
	Height int
	Alpha  []uint8
}

func NewMask(width, height int) (*Mask, error) {
	if err := CheckSize(width, height, MaxPixels); err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	return &Mask{Width: width, Height: height, Alpha: make([]uint8, width*height)}, nil
}

// MaskFromImage takes the alpha channel of img as marker values.
func MaskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := &Mask{Width: b.Dx(), Height: b.Dy(), Alpha: make([]uint8, b.Dx()*b.Dy())}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := color.AlphaModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Alpha)
			m.Alpha[y*b.Dx()+x] = a.A
		}
	}
	return m
}

// MaskFromBuffer takes the alpha samples of a buffer as marker values.
func MaskFromBuffer(buf *Buffer) *Mask {
	m := &Mask{Width: buf.Width, Height: buf.Height, Alpha: make([]uint8, buf.Width*buf.Height)}
	for i := range m.Alpha {
		m.Alpha[i] = buf.Pix[i*4+3]
	}
	return m
}

// Image returns an alpha image view that aliases the marker plane.
func (m *Mask) Image() *image.Alpha {
	return &image.Alpha{
		Pix:    m.Alpha,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

func (m *Mask) Marked(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Alpha[y*m.Width+x] > 0
}

// Count returns the number of marked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, a := range m.Alpha {
		if a > 0 {
			n++
		}
	}
	return n
}

func (m *Mask) Clone() *Mask {
	alpha := make([]uint8, len(m.Alpha))
	copy(alpha, m.Alpha)
	return &Mask{Width: m.Width, Height: m.Height, Alpha: alpha}
}

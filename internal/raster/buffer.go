// Package raster holds the in-memory pixel types shared by every transform
// stage: a non-premultiplied RGBA buffer, a marker mask and a rectangle.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Buffer is a row-major RGBA raster with 4 interleaved 8-bit samples per
// pixel and no row padding. Samples are not alpha-premultiplied.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewBuffer(width, height int) (*Buffer, error) {
	if err := CheckSize(width, height, MaxPixels); err != nil {
		return nil, err
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}, nil
}

// FromImage copies any image into a freshly allocated Buffer.
func FromImage(img image.Image) *Buffer {
	b := img.Bounds()
	out := &Buffer{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy()*4)}
	if src, ok := img.(*image.NRGBA); ok {
		rowBytes := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*rowBytes:(y+1)*rowBytes], src.Pix[off:off+rowBytes])
		}
		return out
	}
	draw.Draw(out.NRGBA(), out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Wrap adopts an NRGBA image as a Buffer. The pixel slice is shared when the
// image is tightly packed and anchored at the origin, copied otherwise.
func Wrap(img *image.NRGBA) *Buffer {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == b.Dx()*4 && len(img.Pix) == b.Dx()*b.Dy()*4 {
		return &Buffer{Width: b.Dx(), Height: b.Dy(), Pix: img.Pix}
	}
	return FromImage(img)
}

// NRGBA returns an image view over the buffer. The view aliases Pix.
func (b *Buffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

func (b *Buffer) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Validate reports whether the sample slice matches the declared dimensions.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrContextUnavailable)
	}
	if err := CheckSize(b.Width, b.Height, MaxPixels); err != nil {
		return err
	}
	if want := b.Width * b.Height * 4; len(b.Pix) != want {
		return fmt.Errorf("%w: have %d samples, want %d", ErrContextUnavailable, len(b.Pix), want)
	}
	return nil
}

func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}

func (b *Buffer) At(x, y int) color.NRGBA {
	i := b.Offset(x, y)
	return color.NRGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
}

func (b *Buffer) Set(x, y int, c color.NRGBA) {
	i := b.Offset(x, y)
	b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = c.R, c.G, c.B, c.A
}

// Fill paints every pixel with c.
func (b *Buffer) Fill(c color.NRGBA) {
	for i := 0; i < len(b.Pix); i += 4 {
		b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}

// Equal reports whether both buffers have the same size and samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.Width != o.Width || b.Height != o.Height || len(b.Pix) != len(o.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

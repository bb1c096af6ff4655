package compress

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/raster"
)

// JPEGQuality is used for plain format conversion.
const JPEGQuality = 92

// HasTransparency probes a grid of roughly 50×50 points and reports whether
// any sampled alpha is below 255.
func HasTransparency(buf *raster.Buffer) bool {
	stepX := max(1, buf.Width/50)
	stepY := max(1, buf.Height/50)
	for y := 0; y < buf.Height; y += stepY {
		for x := 0; x < buf.Width; x += stepX {
			if buf.Pix[buf.Offset(x, y)+3] < 255 {
				return true
			}
		}
	}
	return false
}

// Flatten composites buf over an opaque background colour.
func Flatten(buf *raster.Buffer, bg color.NRGBA) *raster.Buffer {
	canvas := imaging.New(buf.Width, buf.Height, bg)
	return raster.Wrap(imaging.Overlay(canvas, buf.NRGBA(), image.Point{}, 1.0))
}

// ConvertToJPEG flattens buf onto white and encodes it as JPEG.
func ConvertToJPEG(enc codec.Encoder, buf *raster.Buffer) ([]byte, *raster.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, nil, err
	}
	flat := Flatten(buf, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	data, err := enc.Encode(flat, codec.JPEG, JPEGQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", raster.ErrEncodingFailed, err)
	}
	return data, flat, nil
}

//go:build govips && cgo

package codec

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelforge/internal/raster"
)

// Vips exports through libvips, which adds lossy WebP with alpha. Pixels are
// handed over as a fast PNG so the buffer stays the single source of truth.
type Vips struct {
	std Std
}

func (Vips) Supports(format Format) bool {
	return format == JPEG || format == PNG || format == WebP
}

func (v Vips) Encode(buf *raster.Buffer, format Format, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if !v.Supports(format) {
		return nil, fmt.Errorf("%w: %s with govips codec", ErrUnsupportedFormat, format)
	}

	img, err := v.load(buf)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	quality = clampQuality(quality)
	switch format {
	case JPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = true
		if img.HasAlpha() {
			if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, fmt.Errorf("flatten before jpeg: %w", err)
			}
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case WebP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		params := vips.NewPngExportParams()
		params.Compression = 9
		params.StripMetadata = true
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	}
}

// Decode uses the stdlib decoders first and falls back to libvips for
// formats package image does not know, such as HEIF or AVIF.
func (v Vips) Decode(data []byte) (*raster.Buffer, Format, error) {
	buf, format, err := v.std.Decode(data)
	if err == nil {
		return buf, format, nil
	}

	img, vipsErr := vips.NewImageFromBuffer(data)
	if vipsErr != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	params := vips.NewPngExportParams()
	params.Compression = 1
	pngData, _, err := img.ExportPng(params)
	if err != nil {
		return nil, "", fmt.Errorf("convert %s to png: %w", vips.ImageTypes[img.Format()], err)
	}
	buf, _, err = v.std.Decode(pngData)
	if err != nil {
		return nil, "", err
	}
	return buf, Format(vips.ImageTypes[img.Format()]), nil
}

func (Vips) load(buf *raster.Buffer) (*vips.ImageRef, error) {
	var staged bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&staged, buf.NRGBA()); err != nil {
		return nil, fmt.Errorf("stage pixels for libvips: %w", err)
	}
	img, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load pixels into libvips: %w", err)
	}
	return img, nil
}

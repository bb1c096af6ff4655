// Package codec turns raster buffers into encoded bytes and back. The
// stdlib codec is always available; building with the govips and cgo tags
// swaps in a libvips-backed encoder that can also produce WebP.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelforge/internal/raster"
)

type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
)

// ErrUnsupportedFormat is returned by encoders that cannot produce the
// requested format. Callers treat it as "no blob" and move on.
var ErrUnsupportedFormat = errors.New("unsupported format")

type Encoder interface {
	Encode(buf *raster.Buffer, format Format, quality int) ([]byte, error)
	Supports(format Format) bool
}

type Decoder interface {
	Decode(data []byte) (*raster.Buffer, Format, error)
}

type Codec interface {
	Encoder
	Decoder
}

// ParseFormat normalises user input such as "JPG" or " png ".
func ParseFormat(in string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, in)
	}
}

// Output reports whether f can be produced by some encoder.
func (f Format) Output() bool {
	return f == JPEG || f == PNG || f == WebP
}

func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// clampQuality keeps quality inside the [1, 100] range every backend accepts.
func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

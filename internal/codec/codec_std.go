package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/dunamismax/pixelforge/internal/raster"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Std encodes JPEG and PNG with the standard library and decodes every
// format registered with package image, including WebP, BMP and TIFF.
type Std struct{}

func (Std) Supports(format Format) bool {
	return format == JPEG || format == PNG
}

func (Std) Encode(buf *raster.Buffer, format Format, quality int) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	switch format {
	case JPEG:
		if err := jpeg.Encode(&out, buf.NRGBA(), &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case PNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&out, buf.NRGBA()); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s with stdlib codec", ErrUnsupportedFormat, format)
	}

	return out.Bytes(), nil
}

func (Std) Decode(data []byte) (*raster.Buffer, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}
	return raster.FromImage(img), Format(name), nil
}

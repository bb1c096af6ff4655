package raster

import (
	"errors"
	"fmt"
)

// Failure conditions of the transform stages. All of them are local to one
// image; a batch logs them and moves on to the next image.
var (
	ErrInvalidDimension   = errors.New("invalid dimension")
	ErrEmptyRegion        = errors.New("empty region")
	ErrUnsupportedAngle   = errors.New("unsupported angle")
	ErrContextUnavailable = errors.New("pixel context unavailable")
	ErrNoMarkedRegion     = errors.New("no marked region")
	ErrEncodingFailed     = errors.New("encoding failed")
)

// MaxPixels is the largest width×height any buffer or mask may have. It
// keeps width*height*4 inside int on every platform.
const MaxPixels = 1 << 28

// CheckSize rejects negative sizes and sizes whose pixel count exceeds limit.
// A limit that is not positive, or above MaxPixels, means MaxPixels.
func CheckSize(width, height, limit int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}
	if limit <= 0 || limit > MaxPixels {
		limit = MaxPixels
	}
	if width > 0 && height > limit/width {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidDimension, width, height, limit)
	}
	return nil
}

// IsImageError reports whether err belongs to the per-image failure set.
func IsImageError(err error) bool {
	for _, target := range []error{
		ErrInvalidDimension,
		ErrEmptyRegion,
		ErrUnsupportedAngle,
		ErrContextUnavailable,
		ErrNoMarkedRegion,
		ErrEncodingFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Package geometry implements the deterministic coordinate transforms:
// resampling resize, clamped crop and quarter-turn rotation.
//
// Every function returns a newly allocated buffer and leaves its input
// untouched. Resize uses a Catmull-Rom kernel from golang.org/x/image/draw,
// whose integer fixed-point arithmetic is the single rounding policy, so the
// same input always yields byte-identical output.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelforge/internal/raster"
	xdraw "golang.org/x/image/draw"
)

// Resize resamples src into a width×height buffer. Aspect ratio is not
// enforced; ratio locking is the caller's policy.
func Resize(src *raster.Buffer, width, height int) (*raster.Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: resize target %dx%d", raster.ErrInvalidDimension, width, height)
	}
	if err := raster.CheckSize(width, height, raster.MaxPixels); err != nil {
		return nil, fmt.Errorf("resize target: %w", err)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Empty() {
		return nil, fmt.Errorf("%w: source is %dx%d", raster.ErrInvalidDimension, src.Width, src.Height)
	}
	if width == src.Width && height == src.Height {
		return src.Clone(), nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src.NRGBA(), src.Bounds(), xdraw.Src, nil)
	return raster.Wrap(dst), nil
}

// FitWithin returns the dimensions of a w×h image scaled so that its longer
// side equals maxSide, or w, h unchanged when it already fits.
func FitWithin(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	scale := float64(maxSide) / float64(max(w, h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return max(1, nw), max(1, nh)
}

// ClampRect floors r and clamps it into a w×h image: the size to [1, w]×[1, h]
// and the origin so the region stays inside the image. NaN counts as the
// lower bound.
func ClampRect(r raster.Rect, w, h int) image.Rectangle {
	cw := clampFloor(r.Width, 1, w)
	ch := clampFloor(r.Height, 1, h)
	x := clampFloor(r.X, 0, w-cw)
	y := clampFloor(r.Y, 0, h-ch)
	return image.Rect(x, y, x+cw, y+ch)
}

// Crop copies the clamped region of src into a new buffer.
func Crop(src *raster.Buffer, r raster.Rect) (*raster.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	region := ClampRect(r, src.Width, src.Height)
	if src.Empty() || region.Dx() <= 0 || region.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %+v within %dx%d", raster.ErrEmptyRegion, r, src.Width, src.Height)
	}

	return raster.Wrap(imaging.Crop(src.NRGBA(), region)), nil
}

// Rotate turns src clockwise by 0, 90, 180 or 270 degrees. Quarter turns
// swap the output width and height.
func Rotate(src *raster.Buffer, degrees int) (*raster.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	// imaging rotates counter-clockwise.
	switch degrees {
	case 0:
		return src.Clone(), nil
	case 90:
		return raster.Wrap(imaging.Rotate270(src.NRGBA())), nil
	case 180:
		return raster.Wrap(imaging.Rotate180(src.NRGBA())), nil
	case 270:
		return raster.Wrap(imaging.Rotate90(src.NRGBA())), nil
	default:
		return nil, fmt.Errorf("%w: %d", raster.ErrUnsupportedAngle, degrees)
	}
}

// clampFloor floors v into [lo, hi] before converting, so values outside
// the int range never reach the conversion.
func clampFloor(v float64, lo, hi int) int {
	if hi < lo || math.IsNaN(v) {
		return lo
	}
	f := math.Floor(v)
	if f <= float64(lo) {
		return lo
	}
	if f >= float64(hi) {
		return hi
	}
	return int(f)
}

package raster

import "math"

// Rect is a region in image pixel coordinates. Fractional values come from
// UI drag handles; consumers floor them.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Round rounds every field to the nearest integer, halves away from zero.
func (r Rect) Round() Rect {
	return Rect{
		X:      math.Round(r.X),
		Y:      math.Round(r.Y),
		Width:  math.Round(r.Width),
		Height: math.Round(r.Height),
	}
}

// ProgressFunc receives coarse completion milestones in percent.
type ProgressFunc func(percent int)

// Report is safe to call on a nil ProgressFunc.
func (f ProgressFunc) Report(percent int) {
	if f != nil {
		f(percent)
	}
}

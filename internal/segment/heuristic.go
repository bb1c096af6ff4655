package segment

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelforge/internal/raster"
)

// Heuristic classifies pixels by their RGB distance to a background colour
// estimated from the image border, then feathers the hard mask with a
// Gaussian blur.
type Heuristic struct {
	opts Options
}

func NewHeuristic(opts Options) *Heuristic {
	return &Heuristic{opts: opts.withDefaults()}
}

func (h *Heuristic) Options() Options {
	return h.opts
}

func (h *Heuristic) RemoveBackground(ctx context.Context, src *raster.Buffer, strength float64, onProgress raster.ProgressFunc) (*raster.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	strength = clampUnit(strength)
	if src.Empty() {
		onProgress.Report(100)
		return src.Clone(), nil
	}

	bg := EstimateBackground(src, h.opts.SampleStep)
	onProgress.Report(10)

	mask := HardMask(src, bg, Threshold(h.opts, strength))
	onProgress.Report(40)

	sigma := math.Round(h.opts.BlurMax * strength)
	feathered := imaging.Blur(mask, sigma)
	onProgress.Report(70)

	out := src.Clone()
	for y := 0; y < out.Height; y++ {
		row := feathered.PixOffset(0, y)
		for x := 0; x < out.Width; x++ {
			// The blurred mask is grey, so red carries the matte.
			out.Pix[out.Offset(x, y)+3] = feathered.Pix[row+x*4]
		}
	}
	onProgress.Report(100)
	return out, nil
}

// EstimateBackground averages every step-th pixel along the four borders and
// rounds each channel. An empty image estimates white.
func EstimateBackground(src *raster.Buffer, step int) color.NRGBA {
	if src.Empty() {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	if step <= 0 {
		step = 1
	}

	var r, g, b, n int
	push := func(x, y int) {
		c := src.At(x, y)
		r += int(c.R)
		g += int(c.G)
		b += int(c.B)
		n++
	}
	for x := 0; x < src.Width; x += step {
		push(x, 0)
		push(x, src.Height-1)
	}
	for y := 0; y < src.Height; y += step {
		push(0, y)
		push(src.Width-1, y)
	}

	return color.NRGBA{R: roundDiv(r, n), G: roundDiv(g, n), B: roundDiv(b, n), A: 255}
}

// Threshold interpolates between the conservative and aggressive distance
// thresholds.
func Threshold(opts Options, strength float64) float64 {
	strength = clampUnit(strength)
	return opts.BaseThreshold + (opts.MaxThreshold-opts.BaseThreshold)*strength
}

// HardMask marks a pixel as foreground (255) when its squared RGB distance to
// bg exceeds threshold², background (0) otherwise.
func HardMask(src *raster.Buffer, bg color.NRGBA, threshold float64) *image.Gray {
	mask := image.NewGray(src.Bounds())
	limit := threshold * threshold
	for i, j := 0, 0; i < len(src.Pix); i, j = i+4, j+1 {
		dr := float64(int(src.Pix[i]) - int(bg.R))
		dg := float64(int(src.Pix[i+1]) - int(bg.G))
		db := float64(int(src.Pix[i+2]) - int(bg.B))
		if dr*dr+dg*dg+db*db > limit {
			mask.Pix[j] = 255
		}
	}
	return mask
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundDiv(sum, n int) uint8 {
	return uint8((2*sum + n) / (2 * n))
}

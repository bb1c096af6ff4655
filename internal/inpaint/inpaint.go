// Package inpaint reconstructs pixels under a painted mask by averaging the
// unmarked pixels around each hole over several passes.
package inpaint

import (
	"context"
	"fmt"
	"image"

	"github.com/dunamismax/pixelforge/internal/raster"
	xdraw "golang.org/x/image/draw"
)

type Options struct {
	Iterations int
	Radius     int
}

func DefaultOptions() Options {
	return Options{Iterations: 5, Radius: 3}
}

type Inpainter struct {
	opts Options
}

func New(opts Options) *Inpainter {
	def := DefaultOptions()
	if opts.Iterations <= 0 {
		opts.Iterations = def.Iterations
	}
	if opts.Radius <= 0 {
		opts.Radius = def.Radius
	}
	return &Inpainter{opts: opts}
}

func (p *Inpainter) Options() Options {
	return p.opts
}

// InpaintMask returns a working copy of src in which every pixel marked by
// mask has its RGB replaced by the rounded mean of the unmarked pixels in its
// (2r+1)² window. Alpha is left as is. The mask is rescaled to the image size
// first. A marked pixel without any unmarked neighbour keeps its colour.
func (p *Inpainter) InpaintMask(ctx context.Context, src *raster.Buffer, mask *raster.Mask, onProgress raster.ProgressFunc) (*raster.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mask == nil {
		return nil, fmt.Errorf("%w: mask is missing", raster.ErrNoMarkedRegion)
	}
	onProgress.Report(10)

	work := src.Clone()
	onProgress.Report(20)

	scaled := ScaleMask(mask, work.Width, work.Height)
	onProgress.Report(30)

	marked := collectMarked(scaled)
	if len(marked) == 0 {
		return nil, fmt.Errorf("%w: %dx%d mask has no marked pixels", raster.ErrNoMarkedRegion, mask.Width, mask.Height)
	}
	onProgress.Report(40)

	for iter := 0; iter < p.opts.Iterations; iter++ {
		for _, pt := range marked {
			p.fill(work, scaled, pt)
		}
		onProgress.Report(40 + (iter+1)*50/p.opts.Iterations)
	}

	onProgress.Report(95)
	onProgress.Report(100)
	return work, nil
}

func (p *Inpainter) fill(work *raster.Buffer, mask *raster.Mask, pt image.Point) {
	r := p.opts.Radius
	var sumR, sumG, sumB, n int
	for dy := -r; dy <= r; dy++ {
		ny := pt.Y + dy
		if ny < 0 || ny >= work.Height {
			continue
		}
		for dx := -r; dx <= r; dx++ {
			nx := pt.X + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= work.Width || mask.Marked(nx, ny) {
				continue
			}
			i := work.Offset(nx, ny)
			sumR += int(work.Pix[i])
			sumG += int(work.Pix[i+1])
			sumB += int(work.Pix[i+2])
			n++
		}
	}
	if n == 0 {
		return
	}

	i := work.Offset(pt.X, pt.Y)
	work.Pix[i] = roundMean(sumR, n)
	work.Pix[i+1] = roundMean(sumG, n)
	work.Pix[i+2] = roundMean(sumB, n)
}

// ScaleMask resamples m to width×height with bilinear filtering of the
// marker plane. A pixel stays marked when any coverage survives scaling.
func ScaleMask(m *raster.Mask, width, height int) *raster.Mask {
	if m.Width == width && m.Height == height {
		return m.Clone()
	}

	out := &raster.Mask{Width: width, Height: height, Alpha: make([]uint8, width*height)}
	if m.Width == 0 || m.Height == 0 || width == 0 || height == 0 {
		return out
	}
	src := m.Image()
	xdraw.ApproxBiLinear.Scale(out.Image(), image.Rect(0, 0, width, height), src, src.Bounds(), xdraw.Src, nil)
	return out
}

func collectMarked(m *raster.Mask) []image.Point {
	points := make([]image.Point, 0, m.Count())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Alpha[y*m.Width+x] > 0 {
				points = append(points, image.Point{X: x, Y: y})
			}
		}
	}
	return points
}

func roundMean(sum, n int) uint8 {
	return uint8((2*sum + n) / (2 * n))
}

// Package compress searches for an encoding that is smaller than the source
// file. Encoders expose no size-to-quality inverse, so the search lowers
// quality greedily and stops at a floor.
package compress

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/geometry"
	"github.com/dunamismax/pixelforge/internal/raster"
)

type Mode string

const (
	ModeMaximum  Mode = "maximum"
	ModeBalanced Mode = "balanced"
	ModeQuality  Mode = "quality"
)

// ParseMode accepts the three profiles; empty input means balanced.
func ParseMode(in string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(in))) {
	case "", ModeBalanced:
		return ModeBalanced, nil
	case ModeMaximum:
		return ModeMaximum, nil
	case ModeQuality:
		return ModeQuality, nil
	default:
		return "", fmt.Errorf("unknown compression mode %q", in)
	}
}

// StartQuality is the first quality tried for a profile, in percent.
func (m Mode) StartQuality() int {
	switch m {
	case ModeMaximum:
		return 65
	case ModeQuality:
		return 95
	default:
		return 80
	}
}

type Options struct {
	Step         int
	Floor        int
	MaxAttempts  int
	MaxDimension int
}

func DefaultOptions() Options {
	return Options{Step: 5, Floor: 45, MaxAttempts: 12, MaxDimension: 2000}
}

// Input is the decoded source plus what is known about the original file.
type Input struct {
	Buffer       *raster.Buffer
	Format       codec.Format
	OriginalSize int64
}

// Attempt records one encode call. Size is -1 when the encoder produced
// nothing.
type Attempt struct {
	Format  codec.Format
	Quality int
	Size    int
}

type Result struct {
	Buffer           *raster.Buffer
	Data             []byte
	Format           codec.Format
	Quality          int // zero for lossless output
	Width            int
	Height           int
	OriginalSize     int64
	FinalSize        int64
	CompressionRatio float64
	Attempts         []Attempt
}

type Searcher struct {
	enc  codec.Encoder
	opts Options
}

func NewSearcher(enc codec.Encoder, opts Options) *Searcher {
	def := DefaultOptions()
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.Floor <= 0 {
		opts.Floor = def.Floor
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	return &Searcher{enc: enc, opts: opts}
}

// CompressAdaptive tries, in order: a transparency-capable lossy format when
// the encoder has one, JPEG over white for opaque PNG sources, then JPEG for
// opaque or PNG for transparent pixels. The first stage that yields bytes
// wins. A negative CompressionRatio means the output grew.
func (s *Searcher) CompressAdaptive(ctx context.Context, in Input, mode Mode, onProgress raster.ProgressFunc) (*Result, error) {
	if err := in.Buffer.Validate(); err != nil {
		return nil, err
	}
	if in.Buffer.Empty() {
		return nil, fmt.Errorf("%w: source is %dx%d", raster.ErrInvalidDimension, in.Buffer.Width, in.Buffer.Height)
	}

	work := in.Buffer
	if mode == ModeMaximum {
		w, h := geometry.FitWithin(work.Width, work.Height, s.opts.MaxDimension)
		if w != work.Width || h != work.Height {
			scaled, err := geometry.Resize(work, w, h)
			if err != nil {
				return nil, fmt.Errorf("downscale: %w", err)
			}
			work = scaled
		}
	}
	onProgress.Report(10)

	transparent := HasTransparency(work)
	onProgress.Report(20)

	run := &search{
		s:          s,
		original:   in.OriginalSize,
		start:      mode.StartQuality(),
		onProgress: onProgress,
	}

	var (
		data    []byte
		quality int
		format  codec.Format
		out     = work
		err     error
	)
	if s.enc.Supports(codec.WebP) {
		format = codec.WebP
		data, quality, err = run.loop(ctx, work, format)
		if err != nil {
			return nil, err
		}
	}
	if data == nil && in.Format == codec.PNG && !transparent {
		format = codec.JPEG
		out = Flatten(work, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		data, quality, err = run.loop(ctx, out, format)
		if err != nil {
			return nil, err
		}
	}
	if data == nil {
		format, out = codec.JPEG, work
		if transparent {
			format = codec.PNG
		}
		data, quality, err = run.loop(ctx, out, format)
		if err != nil {
			return nil, err
		}
	}
	if data == nil {
		return nil, fmt.Errorf("%w: no encoding produced output after %d attempts", raster.ErrEncodingFailed, len(run.attempts))
	}

	res := &Result{
		Buffer:           out,
		Data:             data,
		Format:           format,
		Quality:          quality,
		Width:            out.Width,
		Height:           out.Height,
		OriginalSize:     in.OriginalSize,
		FinalSize:        int64(len(data)),
		CompressionRatio: Ratio(in.OriginalSize, int64(len(data))),
		Attempts:         run.attempts,
	}
	onProgress.Report(100)
	return res, nil
}

// Ratio is the percentage saved; negative when the output grew and zero when
// the original size is unknown.
func Ratio(original, final int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-final) / float64(original) * 100
}

type search struct {
	s          *Searcher
	original   int64
	start      int
	attempts   []Attempt
	onProgress raster.ProgressFunc
}

// loop lowers quality by the configured step until the output is smaller
// than the original or the floor is reached, then makes one last attempt at
// the floor. Lossless formats ignore quality and are encoded once.
func (r *search) loop(ctx context.Context, buf *raster.Buffer, format codec.Format) ([]byte, int, error) {
	if format == codec.PNG {
		data, err := r.encode(ctx, buf, format, 0)
		return data, 0, err
	}

	floor := r.s.opts.Floor
	q := clamp(r.start, 5, 99)
	for attempt := 0; attempt < r.s.opts.MaxAttempts && q >= floor; attempt++ {
		data, err := r.encode(ctx, buf, format, q)
		if err != nil {
			return nil, 0, err
		}
		if data == nil {
			q -= r.s.opts.Step
			continue
		}
		if int64(len(data)) < r.original || q <= floor {
			return data, q, nil
		}
		q -= r.s.opts.Step
	}

	data, err := r.encode(ctx, buf, format, floor)
	if err != nil || data == nil {
		return nil, 0, err
	}
	return data, floor, nil
}

// encode returns nil bytes, not an error, when the encoder fails. Only
// cancellation aborts the search.
func (r *search) encode(ctx context.Context, buf *raster.Buffer, format codec.Format, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := r.s.enc.Encode(buf, format, quality)
	size := len(data)
	if err != nil || data == nil {
		data, size = nil, -1
	}
	r.attempts = append(r.attempts, Attempt{Format: format, Quality: quality, Size: size})
	r.onProgress.Report(min(90, 20+5*len(r.attempts)))
	return data, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

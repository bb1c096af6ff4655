package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/compress"
	"github.com/dunamismax/pixelforge/internal/config"
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/geometry"
	"github.com/dunamismax/pixelforge/internal/inpaint"
	"github.com/dunamismax/pixelforge/internal/raster"
	"github.com/dunamismax/pixelforge/internal/segment"
)

// Input is a decoded source image together with what the engine needs to
// know about its encoded form. Mask is only read by inpaint steps.
type Input struct {
	Buffer *raster.Buffer
	Format codec.Format
	Size   int64
	Mask   *raster.Mask
}

// Rendered is the encoded result of one step.
type Rendered struct {
	Data             []byte
	Format           codec.Format
	Width            int
	Height           int
	CompressionRatio *float64
}

type Transformer interface {
	Transform(ctx context.Context, in Input, step domain.PipelineStep, onProgress raster.ProgressFunc) (Rendered, error)
}

type EngineOptions struct {
	Strategy        string
	Registry        *segment.Registry
	Segment         segment.Options
	DefaultStrength float64
	Inpaint         inpaint.Options
	Compress        compress.Options
	// MaxPixels caps the size of a resize target; zero means raster.MaxPixels.
	MaxPixels       int
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Strategy:        segment.HeuristicStrategy,
		Segment:         segment.DefaultOptions(),
		DefaultStrength: segment.DefaultOptions().Strength,
		Inpaint:         inpaint.DefaultOptions(),
		Compress:        compress.DefaultOptions(),
		MaxPixels:       defaultMaxPixels,
	}
}

const defaultMaxPixels = 100_000_000

// EngineOptionsFromConfig maps environment settings onto engine options.
func EngineOptionsFromConfig(cfg config.EngineConfig) EngineOptions {
	return EngineOptions{
		Strategy: cfg.Strategy,
		Segment: segment.Options{
			Strength:      cfg.Strength,
			SampleStep:    cfg.SampleStep,
			BaseThreshold: cfg.BaseThreshold,
			MaxThreshold:  cfg.MaxThreshold,
			BlurMax:       cfg.BlurMax,
		},
		DefaultStrength: cfg.Strength,
		Inpaint: inpaint.Options{
			Iterations: cfg.InpaintIterations,
			Radius:     cfg.InpaintRadius,
		},
		Compress: compress.Options{
			Step:         cfg.CompressStep,
			Floor:        cfg.CompressFloor,
			MaxAttempts:  cfg.CompressMaxAttempts,
			MaxDimension: cfg.CompressMaxDimension,
		},
		MaxPixels: cfg.MaxPixels,
	}
}

// Engine maps pipeline steps onto the transform packages and encodes the
// result.
type Engine struct {
	enc       codec.Encoder
	remover   segment.Remover
	strength  float64
	inpainter *inpaint.Inpainter
	searcher  *compress.Searcher
	maxPixels int
}

func NewEngine(enc codec.Encoder, opts EngineOptions) (*Engine, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	registry := opts.Registry
	if registry == nil {
		registry = segment.NewRegistry()
	}
	strategy := strings.TrimSpace(opts.Strategy)
	if strategy == "" {
		strategy = segment.HeuristicStrategy
	}
	remover, err := registry.New(strategy, opts.Segment)
	if err != nil {
		return nil, fmt.Errorf("build background remover: %w", err)
	}

	strength := opts.DefaultStrength
	if strength <= 0 || strength > 1 {
		strength = segment.DefaultOptions().Strength
	}

	return &Engine{
		enc:       enc,
		remover:   remover,
		strength:  strength,
		inpainter: inpaint.New(opts.Inpaint),
		searcher:  compress.NewSearcher(enc, opts.Compress),
		maxPixels: opts.MaxPixels,
	}, nil
}

func (e *Engine) Transform(ctx context.Context, in Input, step domain.PipelineStep, onProgress raster.ProgressFunc) (Rendered, error) {
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}
	if err := in.Buffer.Validate(); err != nil {
		return Rendered{}, err
	}
	src := in.Buffer

	var (
		out *raster.Buffer
		err error
		// lossless keeps alpha when the step does not name a format
		lossless bool
	)
	switch step.NormalizedAction() {
	case domain.ActionResize:
		w, h := resizeTarget(src.Width, src.Height, step.Width, step.Height)
		if err := raster.CheckSize(w, h, e.maxPixels); err != nil {
			return Rendered{}, fmt.Errorf("resize target: %w", err)
		}
		out, err = geometry.Resize(src, w, h)
	case domain.ActionCrop:
		if step.Crop == nil {
			return Rendered{}, fmt.Errorf("%w: crop needs a rectangle", domain.ErrInvalidStep)
		}
		out, err = geometry.Crop(src, *step.Crop)
	case domain.ActionRotate:
		out, err = geometry.Rotate(src, step.Degrees)
		lossless = true
	case domain.ActionRemoveBackground:
		strength := e.strength
		if step.Strength != nil {
			strength = *step.Strength
		}
		out, err = e.remover.RemoveBackground(ctx, src, strength, scaleProgress(onProgress, 90))
		lossless = true
	case domain.ActionInpaint:
		out, err = e.inpainter.InpaintMask(ctx, src, in.Mask, scaleProgress(onProgress, 90))
	case domain.ActionCompress:
		return e.compress(ctx, in, step, onProgress)
	case domain.ActionConvertJPEG:
		data, flat, err := compress.ConvertToJPEG(e.enc, src)
		if err != nil {
			return Rendered{}, err
		}
		onProgress.Report(100)
		return Rendered{Data: data, Format: codec.JPEG, Width: flat.Width, Height: flat.Height}, nil
	default:
		return Rendered{}, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}
	if err != nil {
		return Rendered{}, err
	}

	format, quality, err := e.outputFormat(in.Format, step, lossless)
	if err != nil {
		return Rendered{}, err
	}
	data, err := e.enc.Encode(out, format, quality)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: %s: %v", raster.ErrEncodingFailed, format, err)
	}
	onProgress.Report(100)

	return Rendered{Data: data, Format: format, Width: out.Width, Height: out.Height}, nil
}

func (e *Engine) compress(ctx context.Context, in Input, step domain.PipelineStep, onProgress raster.ProgressFunc) (Rendered, error) {
	mode, err := compress.ParseMode(step.Mode)
	if err != nil {
		return Rendered{}, fmt.Errorf("%w: %v", domain.ErrInvalidStep, err)
	}

	res, err := e.searcher.CompressAdaptive(ctx, compress.Input{
		Buffer:       in.Buffer,
		Format:       in.Format,
		OriginalSize: in.Size,
	}, mode, onProgress)
	if err != nil {
		return Rendered{}, err
	}

	ratio := res.CompressionRatio
	return Rendered{
		Data:             res.Data,
		Format:           res.Format,
		Width:            res.Width,
		Height:           res.Height,
		CompressionRatio: &ratio,
	}, nil
}

// outputFormat picks the step's explicit format, otherwise PNG for PNG
// sources and alpha-producing actions and JPEG for everything else.
func (e *Engine) outputFormat(source codec.Format, step domain.PipelineStep, lossless bool) (codec.Format, int, error) {
	format := codec.JPEG
	if lossless || source == codec.PNG {
		format = codec.PNG
	}
	if strings.TrimSpace(step.Format) != "" {
		parsed, err := codec.ParseFormat(step.Format)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", domain.ErrInvalidStep, err)
		}
		format = parsed
	}
	if !e.enc.Supports(format) {
		return "", 0, fmt.Errorf("%w: %w: %s", raster.ErrEncodingFailed, codec.ErrUnsupportedFormat, format)
	}

	quality := step.Quality
	if quality == 0 {
		quality = compress.JPEGQuality
	}
	return format, quality, nil
}

// resizeTarget fills in a zero side from the source aspect ratio.
func resizeTarget(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return w, h
	}
	switch {
	case w > 0 && h <= 0:
		h = max(1, int(math.Round(float64(srcH)*float64(w)/float64(srcW))))
	case h > 0 && w <= 0:
		w = max(1, int(math.Round(float64(srcW)*float64(h)/float64(srcH))))
	}
	return w, h
}

// scaleProgress maps a stage's 0..100 onto 0..limit so the encode that
// follows owns the tail.
func scaleProgress(fn raster.ProgressFunc, limit int) raster.ProgressFunc {
	if fn == nil {
		return nil
	}
	return func(p int) {
		fn(p * limit / 100)
	}
}

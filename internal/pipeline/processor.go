package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/inpaint"
	"github.com/dunamismax/pixelforge/internal/raster"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid pipeline action")
	ErrUndecodableSource     = errors.New("undecodable source image")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.PipelineStep
}

type Output = domain.StepOutput

type Result struct {
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
	Outputs      []Output
}

// Failed counts the steps that produced no output.
func (r Result) Failed() int {
	n := 0
	for _, out := range r.Outputs {
		if !out.Success {
			n++
		}
	}
	return n
}

// Progress is emitted while a request runs. Percent covers the whole
// request, not just the current step.
type Progress struct {
	Index   int
	JobID   string
	StepID  string
	Percent int
}

// BatchResult is yielded once per request of a batch, in request order.
type BatchResult struct {
	Index   int
	Request Request
	Result  Result
	Err     error
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendered) (Output, error)
}

type Option func(*Processor)

func WithTransformer(t Transformer) Option {
	return func(p *Processor) { p.transformer = t }
}

func WithDecoder(d codec.Decoder) Option {
	return func(p *Processor) { p.decoder = d }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

type Processor struct {
	fetcher     Fetcher
	decoder     codec.Decoder
	transformer Transformer
	emitter     Emitter
	logger      *log.Logger
	tracer      trace.Tracer
}

func NewProcessor(fetcher Fetcher, emitter Emitter, opts ...Option) (*Processor, error) {
	if fetcher == nil || emitter == nil {
		return nil, errors.New("fetcher and emitter are required")
	}
	p := &Processor{
		fetcher: fetcher,
		emitter: emitter,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.decoder == nil {
		p.decoder = codec.Default()
	}
	if p.transformer == nil {
		engine, err := NewEngine(codec.Default(), DefaultEngineOptions())
		if err != nil {
			return nil, fmt.Errorf("build transformer: %w", err)
		}
		p.transformer = engine
	}
	if p.logger == nil {
		p.logger = log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lmsgprefix)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("pixelforge/pipeline")
	}
	return p, nil
}

func NewLocalProcessor(outputDir string, opts ...Option) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, opts...)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	return p.run(ctx, req, nil)
}

// ProcessBatch runs reqs one after another and yields each outcome as soon
// as it is known. A failed request is yielded with its error and the batch
// moves on; cancelling ctx stops the batch before the next request starts.
// Progress events are dropped when the channel is not ready.
func (p *Processor) ProcessBatch(ctx context.Context, reqs []Request, progress chan<- Progress) iter.Seq[BatchResult] {
	return func(yield func(BatchResult) bool) {
		for i, req := range reqs {
			if ctx.Err() != nil {
				return
			}

			report := func(stepID string, percent int) {
				if progress == nil {
					return
				}
				select {
				case progress <- Progress{Index: i, JobID: req.JobID, StepID: stepID, Percent: percent}:
				default:
				}
			}

			res, err := p.run(ctx, req, report)
			if err != nil {
				p.logger.Printf("batch item failed index=%d job_id=%s err=%v", i, req.JobID, err)
			}
			if !yield(BatchResult{Index: i, Request: req, Result: res, Err: err}) {
				return
			}
		}
	}
}

func (p *Processor) run(ctx context.Context, req Request, report func(stepID string, percent int)) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}
	src, format, err := p.decoder.Decode(sourceBytes)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUndecodableSource, err)
	}

	out := Result{
		SourceBytes:  len(sourceBytes),
		SourceWidth:  src.Width,
		SourceHeight: src.Height,
		Outputs:      make([]Output, 0, len(req.Pipeline)),
	}
	total := len(req.Pipeline)
	for i, step := range req.Pipeline {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		var onProgress raster.ProgressFunc
		if report != nil {
			stepID := step.ID
			onProgress = func(percent int) {
				report(stepID, (i*100+percent)/total)
			}
		}

		written, err := p.runStep(ctx, req, step, Input{
			Buffer: src,
			Format: format,
			Size:   int64(len(sourceBytes)),
		}, onProgress)
		if err != nil {
			return Result{}, err
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

func (p *Processor) runStep(ctx context.Context, req Request, step domain.PipelineStep, in Input, onProgress raster.ProgressFunc) (Output, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("pixelforge.job_id", req.JobID),
		attribute.String("pixelforge.step_id", step.ID),
		attribute.String("pixelforge.action", step.NormalizedAction()),
	))
	defer span.End()

	rendered, err := p.transform(ctx, req, step, in, onProgress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !IsStepFailure(err) {
			return Output{}, fmt.Errorf("transform stage step=%s action=%s: %w", step.ID, step.Action, err)
		}
		p.logger.Printf("step failed job_id=%s step=%s action=%s err=%v", req.JobID, step.ID, step.Action, err)
		return Output{StepID: step.ID, Action: step.Action, Error: err.Error()}, nil
	}

	written, err := p.emitter.Emit(ctx, req, step, rendered)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Output{}, fmt.Errorf("emit stage step=%s action=%s: %w", step.ID, step.Action, err)
	}
	span.SetAttributes(attribute.Int("pixelforge.output_bytes", written.Bytes))
	return written, nil
}

func (p *Processor) transform(ctx context.Context, req Request, step domain.PipelineStep, in Input, onProgress raster.ProgressFunc) (Rendered, error) {
	if step.NormalizedAction() == domain.ActionInpaint {
		// queued steps skip request validation; check before allocating a canvas
		if err := step.Validate(); err != nil {
			return Rendered{}, err
		}
		mask, err := p.loadMask(ctx, req, step, in.Buffer.Width, in.Buffer.Height)
		if err != nil {
			return Rendered{}, err
		}
		in.Mask = mask
	}
	return p.transformer.Transform(ctx, in, step, onProgress)
}

// loadMask resolves an inpaint step's mask from its strokes or from the mask
// object. A step with neither gets a nil mask.
func (p *Processor) loadMask(ctx context.Context, req Request, step domain.PipelineStep, width, height int) (*raster.Mask, error) {
	if len(step.Strokes) > 0 {
		w, h := step.MaskWidth, step.MaskHeight
		if w == 0 {
			w = width
		}
		if h == 0 {
			h = height
		}
		return inpaint.MaskFromStrokes(w, h, step.Strokes)
	}
	if strings.TrimSpace(step.MaskKey) == "" {
		return nil, nil
	}

	data, err := p.fetcher.Fetch(ctx, Request{JobID: req.JobID, SourceType: req.SourceType, ObjectKey: step.MaskKey})
	if err != nil {
		return nil, fmt.Errorf("fetch mask %s: %w", step.MaskKey, err)
	}
	buf, _, err := p.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: mask %s is not an image: %v", raster.ErrNoMarkedRegion, step.MaskKey, err)
	}
	return raster.MaskFromBuffer(buf), nil
}

// IsStepFailure reports whether err only invalidates the step that raised
// it. Anything else aborts the request.
func IsStepFailure(err error) bool {
	return raster.IsImageError(err) ||
		errors.Is(err, domain.ErrInvalidStep) ||
		errors.Is(err, ErrInvalidStepAction) ||
		errors.Is(err, codec.ErrUnsupportedFormat)
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.PipelineStep, r Rendered) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputName(step, r.Format))
	if err := os.WriteFile(fullPath, r.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return renderedOutput(step, r, fullPath), nil
}

func renderedOutput(step domain.PipelineStep, r Rendered, path string) Output {
	return Output{
		StepID:           step.ID,
		Action:           step.Action,
		Format:           string(r.Format),
		Path:             path,
		Bytes:            len(r.Data),
		Width:            r.Width,
		Height:           r.Height,
		CompressionRatio: r.CompressionRatio,
		Success:          true,
	}
}

func outputName(step domain.PipelineStep, format codec.Format) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(step.ID), format.Extension())
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

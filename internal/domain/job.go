package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelforge/internal/inpaint"
	"github.com/dunamismax/pixelforge/internal/raster"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

const (
	ActionResize           = "resize"
	ActionCrop             = "crop"
	ActionRotate           = "rotate"
	ActionRemoveBackground = "remove_background"
	ActionInpaint          = "inpaint"
	ActionCompress         = "compress"
	ActionConvertJPEG      = "convert_jpeg"
)

// MaxStepDimension bounds every side a step may ask for: resize targets and
// stroke mask canvases.
const MaxStepDimension = 16384

var ErrInvalidStep = errors.New("invalid pipeline step")

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

// PipelineStep is one transform applied to the job's source image. Only the
// fields of the chosen action are read.
type PipelineStep struct {
	ID     string `json:"id"`
	Action string `json:"action"`

	// resize; a zero side follows the source aspect ratio
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Crop    *raster.Rect `json:"crop,omitempty"`
	Degrees int          `json:"degrees,omitempty"`

	// remove_background; nil uses the engine default
	Strength *float64 `json:"strength,omitempty"`

	// inpaint: either a mask image object or brush strokes painted on a
	// MaskWidth×MaskHeight canvas (zero means source size)
	MaskKey    string                `json:"mask_key,omitempty"`
	Strokes    []inpaint.BrushStroke `json:"strokes,omitempty"`
	MaskWidth  int                   `json:"mask_width,omitempty"`
	MaskHeight int                   `json:"mask_height,omitempty"`

	// compress: maximum, balanced or quality
	Mode string `json:"mode,omitempty"`

	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
}

// StepOutput describes what one pipeline step produced. Failed steps carry
// the error instead of an object.
type StepOutput struct {
	StepID           string   `json:"step_id"`
	Action           string   `json:"action"`
	Format           string   `json:"format,omitempty"`
	Path             string   `json:"path,omitempty"`
	Bytes            int      `json:"bytes"`
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	Outputs    []StepOutput
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}

	seen := make(map[string]struct{}, len(r.Pipeline))
	for i, step := range r.Pipeline {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("pipeline[%d].id %q is duplicated", i, step.ID)
		}
		seen[step.ID] = struct{}{}

		if err := step.Validate(); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
		if step.NormalizedAction() == ActionInpaint && sourceType == SourceTypeLocalFile && !step.HasMask() {
			return fmt.Errorf("pipeline[%d]: %w: inpaint on local_file needs mask_key or strokes", i, ErrInvalidStep)
		}
	}
	return nil
}

func (s PipelineStep) NormalizedAction() string {
	return strings.ToLower(strings.TrimSpace(s.Action))
}

// HasMask reports whether the step already names its inpainting mask.
func (s PipelineStep) HasMask() bool {
	return strings.TrimSpace(s.MaskKey) != "" || len(s.Strokes) > 0
}

// Validate checks the parameters of the step's action. Pixel-level failures
// are left to the engine.
func (s PipelineStep) Validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Format)) {
	case "", "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidStep, s.Format)
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("%w: quality must be within 0..100", ErrInvalidStep)
	}

	switch s.NormalizedAction() {
	case "":
		return fmt.Errorf("%w: action is required", ErrInvalidStep)
	case ActionResize:
		if s.Width < 0 || s.Height < 0 || (s.Width == 0 && s.Height == 0) {
			return fmt.Errorf("%w: resize needs a positive width or height", ErrInvalidStep)
		}
		if s.Width > MaxStepDimension || s.Height > MaxStepDimension {
			return fmt.Errorf("%w: resize sides must not exceed %d", ErrInvalidStep, MaxStepDimension)
		}
	case ActionCrop:
		if s.Crop == nil {
			return fmt.Errorf("%w: crop needs a rectangle", ErrInvalidStep)
		}
	case ActionRotate:
		switch s.Degrees {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("%w: rotate accepts 0, 90, 180 or 270 degrees", ErrInvalidStep)
		}
	case ActionRemoveBackground:
		if s.Strength != nil && (*s.Strength < 0 || *s.Strength > 1) {
			return fmt.Errorf("%w: strength must be within 0..1", ErrInvalidStep)
		}
	case ActionInpaint:
		if s.MaskWidth < 0 || s.MaskHeight < 0 {
			return fmt.Errorf("%w: mask size must not be negative", ErrInvalidStep)
		}
		if s.MaskWidth > MaxStepDimension || s.MaskHeight > MaxStepDimension {
			return fmt.Errorf("%w: mask sides must not exceed %d", ErrInvalidStep, MaxStepDimension)
		}
		for i, stroke := range s.Strokes {
			if stroke.Radius <= 0 {
				return fmt.Errorf("%w: strokes[%d].radius must be positive", ErrInvalidStep, i)
			}
		}
	case ActionCompress:
		switch strings.ToLower(strings.TrimSpace(s.Mode)) {
		case "", "maximum", "balanced", "quality":
		default:
			return fmt.Errorf("%w: unknown compression mode %q", ErrInvalidStep, s.Mode)
		}
	case ActionConvertJPEG:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidStep, s.Action)
	}
	return nil
}

// Cost is the rate-limit weight of a step. Pixel-neighbourhood passes cost
// more than coordinate transforms.
func (s PipelineStep) Cost() int {
	switch s.NormalizedAction() {
	case ActionRemoveBackground, ActionInpaint:
		return 3
	case ActionCompress:
		return 2
	default:
		return 1
	}
}

// PipelineCost sums the cost of every step.
func PipelineCost(steps []PipelineStep) int {
	total := 0
	for _, step := range steps {
		total += step.Cost()
	}
	return total
}

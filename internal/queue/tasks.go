package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeProcessImage = "image:process"

// ErrInvalidPayload marks a task body that no retry can make runnable.
var ErrInvalidPayload = errors.New("invalid process image payload")

// ProcessImagePayload carries a started job to the worker. Mask keys and
// strokes travel inside the pipeline steps.
type ProcessImagePayload struct {
	JobID       string                `json:"job_id"`
	UserID      string                `json:"user_id,omitempty"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

func (p ProcessImagePayload) Validate() error {
	switch {
	case strings.TrimSpace(p.JobID) == "":
		return fmt.Errorf("%w: job_id is required", ErrInvalidPayload)
	case strings.TrimSpace(p.ObjectKey) == "":
		return fmt.Errorf("%w: object_key is required", ErrInvalidPayload)
	case len(p.Pipeline) == 0:
		return fmt.Errorf("%w: pipeline is empty", ErrInvalidPayload)
	}
	return nil
}

func NewProcessImageTask(payload ProcessImagePayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessImage, body), nil
}

func ParseProcessImagePayload(task *asynq.Task) (ProcessImagePayload, error) {
	var payload ProcessImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessImagePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payload.Validate(); err != nil {
		return ProcessImagePayload{}, err
	}
	return payload, nil
}

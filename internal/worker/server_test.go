package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/pipeline"
	"github.com/dunamismax/pixelforge/internal/queue"
	"github.com/dunamismax/pixelforge/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusProcessing,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Pipeline:   []domain.PipelineStep{{ID: "thumb", Action: "resize", Width: 100}},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	ratio := 60.0
	s.recordUsage(context.Background(), "job-1", "", pipeline.Result{
		SourceBytes: 1_000,
		Outputs: []pipeline.Output{
			{Width: 10, Height: 10, Bytes: 300, Success: true},
			{Width: 20, Height: 20, Bytes: 400, Success: true, CompressionRatio: &ratio},
			{Error: "no marked region"},
		},
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.PixelsProcessed != 500 {
		t.Fatalf("expected pixels_processed=500, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.BytesSaved != 600 {
		t.Fatalf("expected bytes_saved=600, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageClampsNegativeBytesSaved(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	ratio := -100.0
	s.recordUsage(context.Background(), "job-2", "user-2", pipeline.Result{
		SourceBytes: 100,
		Outputs: []pipeline.Output{
			{Width: 5, Height: 5, Bytes: 200, Success: true, CompressionRatio: &ratio},
		},
	}, 0)

	if usageStore.log.UserID != "user-2" {
		t.Fatalf("expected payload user id to win, got %s", usageStore.log.UserID)
	}
	if usageStore.log.BytesSaved != 0 {
		t.Fatalf("expected bytes_saved=0, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestHandleProcessImageCompletesJob(t *testing.T) {
	jobStore := seededStore(t, "job-ok")
	hooks := &captureWebhook{}
	s := testServer(jobStore, hooks, stubProcessor{result: pipeline.Result{
		SourceBytes: 10,
		Outputs: []pipeline.Output{
			{StepID: "thumb", Action: "resize", Success: true, Width: 2, Height: 2, Bytes: 4},
			{StepID: "fix", Action: "inpaint", Error: "no marked region"},
		},
	}})

	if err := s.handleProcessImage(context.Background(), task(t, "job-ok", domain.SourceTypeLocalFile)); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-ok")
	if job.Status != domain.JobStatusSucceeded || len(job.Outputs) != 2 {
		t.Fatalf("expected succeeded job with outputs, got %+v", job)
	}
	if hooks.event != "job.completed" {
		t.Fatalf("expected job.completed webhook, got %q", hooks.event)
	}
	if logs := jobStore.UsageLogs("user-1"); len(logs) != 1 {
		t.Fatalf("expected one usage log, got %d", len(logs))
	}
}

func TestHandleProcessImageDoesNotRetryAfterWebhookFailure(t *testing.T) {
	jobStore := seededStore(t, "job-hook")
	hooks := &captureWebhook{err: errors.New("webhook returned 503")}
	s := testServer(jobStore, hooks, stubProcessor{result: pipeline.Result{
		SourceBytes: 10,
		Outputs:     []pipeline.Output{{StepID: "thumb", Action: "resize", Success: true, Width: 2, Height: 2, Bytes: 4}},
	}})

	err := s.handleProcessImage(context.Background(), task(t, "job-hook", domain.SourceTypeLocalFile))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry after a webhook-only failure, got %v", err)
	}
	job, _, _ := jobStore.Get(context.Background(), "job-hook")
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("expected the job to stay succeeded, got %+v", job)
	}
	if logs := jobStore.UsageLogs("user-1"); len(logs) != 1 {
		t.Fatalf("expected one usage log, got %d", len(logs))
	}
}

func TestHandleProcessImageSkipsRetryForPermanentFailures(t *testing.T) {
	tests := []struct {
		name   string
		proc   stubProcessor
		source string
	}{
		{name: "undecodable source", proc: stubProcessor{err: pipeline.ErrUndecodableSource}, source: domain.SourceTypeLocalFile},
		{name: "every step failed", proc: stubProcessor{result: pipeline.Result{Outputs: []pipeline.Output{{Error: "unsupported angle"}}}}, source: domain.SourceTypeLocalFile},
		{name: "object storage missing", source: domain.SourceTypeS3Presigned},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobStore := seededStore(t, "job-bad")
			hooks := &captureWebhook{}
			s := testServer(jobStore, hooks, tc.proc)
			s.objectProcessor = nil

			err := s.handleProcessImage(context.Background(), task(t, "job-bad", tc.source))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("expected SkipRetry, got %v", err)
			}
			job, _, _ := jobStore.Get(context.Background(), "job-bad")
			if job.Status != domain.JobStatusFailed || job.Error == "" {
				t.Fatalf("expected failed job with error, got %+v", job)
			}
			if hooks.event != "job.failed" {
				t.Fatalf("expected job.failed webhook, got %q", hooks.event)
			}
		})
	}
}

func TestHandleProcessImageRetriesTransientFailures(t *testing.T) {
	jobStore := seededStore(t, "job-io")
	s := testServer(jobStore, nil, stubProcessor{err: errors.New("fetch stage: connection reset")})

	err := s.handleProcessImage(context.Background(), task(t, "job-io", domain.SourceTypeLocalFile))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestHandleProcessImageRejectsBadPayload(t *testing.T) {
	s := testServer(store.NewMemoryJobStore(), nil, stubProcessor{})
	err := s.handleProcessImage(context.Background(), asynq.NewTask(queue.TypeProcessImage, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

type stubProcessor struct {
	result pipeline.Result
	err    error
}

func (p stubProcessor) Process(_ context.Context, _ pipeline.Request) (pipeline.Result, error) {
	return p.result, p.err
}

type captureWebhook struct {
	event string
	err   error
}

func (c *captureWebhook) Send(_ context.Context, _ string, event string, _ any) error {
	c.event = event
	return c.err
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

func testServer(jobStore *store.MemoryJobStore, hooks *captureWebhook, proc stubProcessor) *Server {
	s := &Server{
		logger:          log.New(io.Discard, "", 0),
		sem:             make(chan struct{}, 1),
		localProcessor:  proc,
		objectProcessor: proc,
		jobStore:        jobStore,
		usageStore:      jobStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("test"),
	}
	if hooks != nil {
		s.webhookClient = hooks
	}
	return s
}

func seededStore(t *testing.T, jobID string) *store.MemoryJobStore {
	t.Helper()
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:     jobID,
		UserID: "user-1",
		Status: domain.JobStatusQueued,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return jobStore
}

func task(t *testing.T, jobID, sourceType string) *asynq.Task {
	t.Helper()
	tk, err := queue.NewProcessImageTask(queue.ProcessImagePayload{
		JobID:      jobID,
		SourceType: sourceType,
		WebhookURL: "https://hooks.example.test/pixelforge",
		ObjectKey:  "input.png",
		Pipeline:   []domain.PipelineStep{{ID: "thumb", Action: "resize", Width: 2}},
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return tk
}

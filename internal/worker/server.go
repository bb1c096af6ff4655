package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelforge/internal/codec"
	"github.com/dunamismax/pixelforge/internal/config"
	"github.com/dunamismax/pixelforge/internal/domain"
	"github.com/dunamismax/pixelforge/internal/pipeline"
	"github.com/dunamismax/pixelforge/internal/queue"
	"github.com/dunamismax/pixelforge/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errAllStepsFailed = errors.New("every pipeline step failed")

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// NewServer wires the queue consumer. A nil storage client leaves only
// local_file jobs runnable.
func NewServer(
	logger *log.Logger,
	cfg config.Config,
	storageClient pipeline.ObjectStore,
	webhookClient webhookSender,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	engine, err := pipeline.NewEngine(codec.Default(), pipeline.EngineOptionsFromConfig(cfg.Engine))
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	opts := []pipeline.Option{
		pipeline.WithTransformer(engine),
		pipeline.WithLogger(log.New(logger.Writer(), "[pipeline] ", log.LstdFlags|log.Lmsgprefix)),
	}

	localProcessor, err := pipeline.NewLocalProcessor(cfg.Worker.LocalOutputDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	var objectProcessor processor
	if storageClient != nil {
		objectProcessor, err = pipeline.NewObjectStoreProcessor(storageClient, cfg.Worker.OutputPrefix, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			cfg.Queue.RedisClientOpt(),
			asynq.Config{
				Concurrency: cfg.Worker.Concurrency,
				Queues: map[string]int{
					cfg.Queue.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, cfg.Worker.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelforge/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessImage, s.handleProcessImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseProcessImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s source_type=%s steps=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Pipeline),
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Pipeline:   payload.Pipeline,
	}

	var result pipeline.Result
	switch {
	case payload.SourceType == domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	case s.objectProcessor == nil:
		err = fmt.Errorf("%w: %s (object storage not configured)", pipeline.ErrUnsupportedSourceType, payload.SourceType)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err == nil && len(result.Outputs) > 0 && result.Failed() == len(result.Outputs) {
		err = fmt.Errorf("%w: %s", errAllStepsFailed, result.Outputs[0].Error)
	}
	s.observeSteps(result)

	if err != nil {
		s.completeJob(ctx, payload.JobID, domain.JobStatusFailed, result.Outputs, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		_ = s.dispatchWebhook(ctx, payload, "job.failed", map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"outputs":      result.Outputs,
			"error":        err.Error(),
		})
		if isPermanent(err) {
			return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	s.logger.Printf("Processed job_id=%s outputs=%d failed_steps=%d", payload.JobID, len(result.Outputs), result.Failed())
	s.completeJob(ctx, payload.JobID, domain.JobStatusSucceeded, result.Outputs, "")
	s.recordUsage(ctx, payload.JobID, payload.UserID, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, "job.completed", map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"outputs":      result.Outputs,
	}); err != nil {
		// job and usage rows are already written; a retry must not rerun the pipeline
		outcome = domain.JobStatusSucceeded
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// isPermanent reports failures that a retry of the same payload cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, pipeline.ErrUndecodableSource) ||
		errors.Is(err, pipeline.ErrUnsupportedSourceType) ||
		errors.Is(err, errAllStepsFailed)
}

func (s *Server) observeSteps(result pipeline.Result) {
	for _, out := range result.Outputs {
		status := "succeeded"
		if !out.Success {
			status = "failed"
		}
		s.metrics.stepsTotal.WithLabelValues(strings.ToLower(out.Action), status).Inc()
		if out.Success {
			s.metrics.outputBytes.WithLabelValues(out.Format).Observe(float64(out.Bytes))
		}
		if out.CompressionRatio != nil {
			s.metrics.compressionRatio.Observe(*out.CompressionRatio)
		}
	}
	s.metrics.pipelineOutputsTotal.Add(float64(len(result.Outputs) - result.Failed()))
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) completeJob(ctx context.Context, jobID, status string, outputs []domain.StepOutput, errMsg string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Complete(ctx, jobID, status, outputs, errMsg); err != nil {
		s.logger.Printf("job completion update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessImagePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

// recordUsage writes one usage row per successful job. Payloads queued
// without a user fall back to the stored job.
func (s *Server) recordUsage(ctx context.Context, jobID, userID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	if strings.TrimSpace(userID) == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok {
			userID = job.UserID
		}
	}
	usage := domain.NewUsageLog(strings.TrimSpace(userID), jobID, result.SourceBytes, result.Outputs, computeDuration)
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(usage.BytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}

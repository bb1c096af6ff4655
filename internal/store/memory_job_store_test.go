package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixelforge/internal/domain"
)

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	now := time.Now().UTC()
	job := domain.Job{ID: "job-1", UserID: "user-1", Status: domain.JobStatusCreated, CreatedAt: now, UpdatedAt: now}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("expected job to exist, ok=%v err=%v", ok, err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("expected user_id to round trip, got %q", got.UserID)
	}

	queued, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if queued.Status != domain.JobStatusQueued || queued.UpdatedAt.Before(now) {
		t.Fatalf("unexpected updated job %+v", queued)
	}

	outputs := []domain.StepOutput{{StepID: "thumb", Success: true, Bytes: 10}}
	done, err := s.Complete(ctx, "job-1", domain.JobStatusSucceeded, outputs, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	outputs[0].Bytes = 99
	if len(done.Outputs) != 1 || done.Outputs[0].Bytes != 10 {
		t.Fatalf("expected stored outputs to be a copy, got %+v", done.Outputs)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job to be absent")
	}
}

func TestMemoryJobStoreUsageLogs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.CreateUsageLog(ctx, domain.UsageLog{UserID: "a", JobID: "1", PixelsProcessed: 100}); err != nil {
		t.Fatalf("create usage: %v", err)
	}
	if err := s.CreateUsageLog(ctx, domain.UsageLog{UserID: "b", JobID: "2"}); err != nil {
		t.Fatalf("create usage: %v", err)
	}

	logs := s.UsageLogs("a")
	if len(logs) != 1 || logs[0].PixelsProcessed != 100 {
		t.Fatalf("unexpected usage logs %+v", logs)
	}
	if logs[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to default to now")
	}
}

func TestMemoryJobStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryJobStore().Create(ctx, domain.Job{ID: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

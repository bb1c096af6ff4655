package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dunamismax/pixelforge/internal/domain"
)

type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Job{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	return s.update(ctx, id, func(job *domain.Job) {
		job.Status = status
	})
}

func (s *MemoryJobStore) Complete(ctx context.Context, id, status string, outputs []domain.StepOutput, errMsg string) (domain.Job, error) {
	return s.update(ctx, id, func(job *domain.Job) {
		job.Status = status
		job.Outputs = slices.Clone(outputs)
		job.Error = errMsg
	})
}

func (s *MemoryJobStore) update(ctx context.Context, id string, apply func(*domain.Job)) (domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return domain.Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

// UsageLogs returns the recorded usage for userID in insertion order.
func (s *MemoryJobStore) UsageLogs(userID string) []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UsageLog
	for _, u := range s.usage {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out
}

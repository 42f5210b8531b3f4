package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orrn/diaryprint/internal/core"
)

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*core.PrintJob
	now  func() time.Time
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*core.PrintJob),
		now:  time.Now,
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *core.PrintJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("%w: job %s already exists", core.ErrConflict, job.JobID)
	}

	now := s.now()
	rec := *job
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	s.jobs[rec.JobID] = &rec

	job.CreatedAt = rec.CreatedAt
	job.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, jobID string) (*core.PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", core.ErrNotFound, jobID)
	}
	return copyJob(rec), nil
}

func (s *MemoryJobStore) Transition(ctx context.Context, jobID string, next core.JobStatus, errMsg string) (*core.PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", core.ErrNotFound, jobID)
	}
	if !rec.Status.CanTransitionTo(next) {
		return copyJob(rec), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, next)
	}

	now := s.now()
	rec.Status = next
	rec.UpdatedAt = now
	if errMsg != "" {
		rec.Error = errMsg
	}
	if next.IsTerminal() {
		rec.CompletedAt = &now
	}
	return copyJob(rec), nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: job %s", core.ErrNotFound, jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryJobStore) ListStale(ctx context.Context, status core.JobStatus, before time.Time) ([]*core.PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*core.PrintJob
	for _, rec := range s.jobs {
		if rec.Status == status && rec.UpdatedAt.Before(before) {
			jobs = append(jobs, copyJob(rec))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func copyJob(rec *core.PrintJob) *core.PrintJob {
	c := *rec
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Package store holds the controller's job table.
//
// The table is process-lifetime state: it is created at start-up and lost on
// restart. JobStore keeps the controller independent of the backing so a
// durable implementation can replace MemoryJobStore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/orrn/diaryprint/internal/core"
)

var ErrInvalidTransition = errors.New("invalid job status transition")

type JobStore interface {
	Create(ctx context.Context, job *core.PrintJob) error
	Get(ctx context.Context, jobID string) (*core.PrintJob, error)
	// Transition moves a job to next if the lifecycle allows it. errMsg is
	// recorded when non-empty.
	Transition(ctx context.Context, jobID string, next core.JobStatus, errMsg string) (*core.PrintJob, error)
	// Delete drops a job that was never handed out to a caller.
	Delete(ctx context.Context, jobID string) error
	// ListStale returns jobs in status whose last update is older than before.
	ListStale(ctx context.Context, status core.JobStatus, before time.Time) ([]*core.PrintJob, error)
}

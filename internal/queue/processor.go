// Package queue serializes print jobs onto the single printer. Jobs are
// taken strictly in arrival order and at most one is handed to the driver
// at any moment.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/metrics"
)

type Driver interface {
	PrintDiary(ctx context.Context, entry *core.QueueEntry) error
}

// Notifier reports a finished job back to the controller.
type Notifier interface {
	NotifyCompletion(jobID string, success bool, errMsg string)
}

type Options struct {
	Cooldown time.Duration
	Logger   *slog.Logger
}

type Processor struct {
	driver   Driver
	notifier Notifier
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	entries  []*core.QueueEntry
	current  *core.QueueEntry
	printing bool
	stopped  bool
	readyAt  time.Time
	wg       sync.WaitGroup
}

func NewProcessor(driver Driver, notifier Notifier, opts Options) *Processor {
	cooldown := opts.Cooldown
	if cooldown < 0 {
		cooldown = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		driver:   driver,
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger.With("component", "queue"),
		now:      time.Now,
	}
}

// Enqueue appends a job to the tail of the queue and returns its position
// among the waiting jobs. Printing starts asynchronously.
func (p *Processor) Enqueue(payload core.PrintPayload) (int, error) {
	if payload.JobID == "" {
		return 0, fmt.Errorf("%w: jobId is required", core.ErrValidation)
	}
	if len(payload.Pages) == 0 {
		return 0, fmt.Errorf("%w: pages must not be empty", core.ErrValidation)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return 0, fmt.Errorf("%w: print server is shutting down", core.ErrUpstreamUnavailable)
	}
	if p.containsLocked(payload.JobID) {
		return 0, fmt.Errorf("%w: job %s is already queued", core.ErrConflict, payload.JobID)
	}

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	p.entries = append(p.entries, &core.QueueEntry{
		JobID:     payload.JobID,
		DiaryID:   payload.DiaryID,
		Title:     payload.Title,
		Date:      payload.Date,
		Pages:     payload.Pages,
		MimeType:  mimeType,
		Status:    core.QueueEntryQueued,
		CreatedAt: p.now(),
	})
	position := len(p.entries)
	metrics.QueueLength.Set(float64(position))

	p.logger.Info("job queued", "job_id", payload.JobID, "pages", len(payload.Pages), "position", position)

	var delay time.Duration
	if wait := p.readyAt.Sub(p.now()); wait > 0 {
		delay = wait
	}
	p.scheduleLocked(delay)

	return position, nil
}

func (p *Processor) containsLocked(jobID string) bool {
	if p.current != nil && p.current.JobID == jobID {
		return true
	}
	for _, e := range p.entries {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}

// scheduleLocked arranges a drain attempt after delay. Must hold p.mu.
func (p *Processor) scheduleLocked(delay time.Duration) {
	if p.stopped {
		return
	}
	p.wg.Add(1)
	if delay <= 0 {
		go func() {
			defer p.wg.Done()
			p.drain()
		}()
		return
	}
	time.AfterFunc(delay, func() {
		defer p.wg.Done()
		p.drain()
	})
}

// drain prints the head of the queue unless a job is already printing.
func (p *Processor) drain() {
	p.mu.Lock()
	if p.stopped || p.printing || len(p.entries) == 0 {
		p.mu.Unlock()
		return
	}

	entry := p.entries[0]
	p.entries[0] = nil
	p.entries = p.entries[1:]
	entry.Status = core.QueueEntryPrinting
	p.current = entry
	p.printing = true
	metrics.QueueLength.Set(float64(len(p.entries)))
	metrics.Printing.Set(1)
	p.mu.Unlock()

	logger := p.logger.With("job_id", entry.JobID)
	logger.Info("printing job", "diary_id", entry.DiaryID, "pages", len(entry.Pages))

	start := p.now()
	err := p.print(entry)

	p.mu.Lock()
	p.printing = false
	p.current = nil
	p.readyAt = p.now().Add(p.cooldown)
	if len(p.entries) > 0 {
		p.scheduleLocked(p.cooldown)
	}
	metrics.Printing.Set(0)
	p.mu.Unlock()

	metrics.JobsProcessed.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		logger.Error("job failed", "error", err, "duration", p.now().Sub(start))
		p.notify(entry.JobID, false, err.Error())
		return
	}
	logger.Info("job completed", "duration", p.now().Sub(start))
	p.notify(entry.JobID, true, "")
}

func (p *Processor) print(entry *core.QueueEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: driver panic: %v", core.ErrPrintExecution, r)
		}
	}()
	return p.driver.PrintDiary(context.Background(), entry)
}

func (p *Processor) notify(jobID string, success bool, errMsg string) {
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyCompletion(jobID, success, errMsg)
}

// Len returns the number of jobs waiting, excluding the one printing.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Processor) IsPrinting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printing
}

// Snapshot lists the waiting jobs and the one printing, without page data.
func (p *Processor) Snapshot() core.QueueSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := core.QueueSnapshot{
		Success:    true,
		Queue:      make([]core.QueueEntryView, 0, len(p.entries)),
		IsPrinting: p.printing,
	}
	for _, e := range p.entries {
		snap.Queue = append(snap.Queue, e.View())
	}
	if p.current != nil {
		current := p.current.View()
		snap.Current = &current
	}
	return snap
}

// Stop rejects new jobs and waits for the job currently printing to finish
// or ctx to expire. Waiting jobs are dropped; drains already scheduled
// return without printing.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	dropped := len(p.entries)
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Warn("stopping with queued jobs", "dropped", dropped)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

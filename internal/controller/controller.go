// Package controller accepts print requests from the frontend, tracks each
// job's lifecycle and hands jobs to the remote print server in the
// background.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/metrics"
	"github.com/orrn/diaryprint/internal/store"
)

// Printer status values reported to the frontend.
const (
	StatusOnline   = "online"
	StatusPrinting = "printing"
	StatusOffline  = "offline"
)

const (
	defaultDispatchQueueSize = 100

	lostCompletionMessage = "completion notification lost"
)

// DiarySource looks up diaries and their rendered pages.
type DiarySource interface {
	GetDiary(ctx context.Context, diaryID string) (*core.Diary, error)
	GetPrintable(ctx context.Context, diaryID string) (*core.PrintableDiary, error)
}

// PrintServer is the remote print server as the controller sees it.
type PrintServer interface {
	Submit(ctx context.Context, payload core.PrintPayload) (*core.SubmitResponse, error)
	PrinterStatus(ctx context.Context) (*core.ServerStatus, error)
	Queue(ctx context.Context) (*core.QueueSnapshot, error)
}

// Options tunes a Controller. Zero values fall back to one dispatch worker
// and a dispatch queue of 100 jobs.
type Options struct {
	DispatchWorkers   int
	DispatchQueueSize int
	// ReconcileInterval and StaleAfter drive the lost-completion sweep.
	// StaleAfter of zero disables it.
	ReconcileInterval time.Duration
	StaleAfter        time.Duration
	Logger            *slog.Logger
}

// PrintRequest asks for a diary to be printed. Empty PageNumbers selects
// every page.
type PrintRequest struct {
	DiaryID     string
	UserID      string
	PageNumbers []int
}

// PrintResult is returned as soon as a job is recorded.
type PrintResult struct {
	JobID      string         `json:"jobId"`
	Status     core.JobStatus `json:"status"`
	TotalPages int            `json:"totalPages"`
}

type dispatchTask struct {
	jobID   string
	payload core.PrintPayload
}

// Controller owns the job table and the background dispatch to the print
// server.
type Controller struct {
	diaries DiarySource
	jobs    store.JobStore
	server  PrintServer
	logger  *slog.Logger
	now     func() time.Time

	workers           int
	reconcileInterval time.Duration
	staleAfter        time.Duration

	mu     sync.Mutex
	closed bool
	tasks  chan dispatchTask
	stopCh chan struct{}
	wg     sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds a Controller. Call Start before submitting jobs.
func New(diaries DiarySource, jobs store.JobStore, server PrintServer, opts Options) *Controller {
	if opts.DispatchWorkers < 1 {
		opts.DispatchWorkers = 1
	}
	if opts.DispatchQueueSize < 1 {
		opts.DispatchQueueSize = defaultDispatchQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		diaries:           diaries,
		jobs:              jobs,
		server:            server,
		logger:            logger.With("component", "controller"),
		now:               time.Now,
		workers:           opts.DispatchWorkers,
		reconcileInterval: opts.ReconcileInterval,
		staleAfter:        opts.StaleAfter,
		tasks:             make(chan dispatchTask, opts.DispatchQueueSize),
		stopCh:            make(chan struct{}),
		baseCtx:           ctx,
		cancel:            cancel,
	}
}

// Start launches the dispatch workers and, when StaleAfter is set, the
// reconciler.
func (c *Controller) Start() {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}

	if c.staleAfter > 0 && c.reconcileInterval > 0 {
		c.wg.Add(1)
		go c.reconcileLoop()
	}
}

// Stop refuses new requests and lets queued dispatches finish. When ctx
// expires first, in-flight dispatches are cancelled and their jobs fail.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.tasks)
		close(c.stopCh)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

// PrintDiary validates the request, records a pending job and queues it for
// dispatch. It does not wait for the print server.
func (c *Controller) PrintDiary(ctx context.Context, req PrintRequest) (*PrintResult, error) {
	if req.DiaryID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: diaryId and userId are required", core.ErrValidation)
	}

	diary, err := c.diaries.GetDiary(ctx, req.DiaryID)
	if err != nil {
		return nil, err
	}
	if diary.UserID != req.UserID {
		return nil, fmt.Errorf("%w: diary %s", core.ErrNotFound, req.DiaryID)
	}

	printable, err := c.diaries.GetPrintable(ctx, req.DiaryID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("%w: diary %s has no printable pages, complete it first", core.ErrNotFound, req.DiaryID)
		}
		return nil, err
	}
	if len(printable.Pages) == 0 {
		return nil, fmt.Errorf("%w: diary %s has no printable pages, complete it first", core.ErrNotFound, req.DiaryID)
	}

	pages := selectPages(printable.Pages, req.PageNumbers)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages match the requested page numbers", core.ErrValidation)
	}

	job := &core.PrintJob{
		JobID:      core.NewJobID(c.now()),
		DiaryID:    diary.ID,
		UserID:     req.UserID,
		Status:     core.JobStatusPending,
		TotalPages: len(pages),
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	task := dispatchTask{
		jobID: job.JobID,
		payload: core.PrintPayload{
			JobID:    job.JobID,
			DiaryID:  diary.ID,
			Title:    diary.Title,
			Date:     diary.Date,
			Pages:    pages,
			MimeType: printable.MimeType,
		},
	}
	if err := c.submit(task); err != nil {
		// the caller never sees this id, so the job is dropped
		if delErr := c.jobs.Delete(ctx, job.JobID); delErr != nil {
			c.logger.Warn("failed to discard undispatched job", "job_id", job.JobID, "error", delErr)
		}
		c.logger.Warn("print job rejected", "diary_id", diary.ID, "error", err)
		return nil, err
	}
	metrics.JobsCreated.Inc()

	c.logger.Info("print job created",
		"job_id", job.JobID, "diary_id", diary.ID, "user_id", req.UserID, "pages", len(pages))

	return &PrintResult{
		JobID:      job.JobID,
		Status:     core.JobStatusPending,
		TotalPages: len(pages),
	}, nil
}

func (c *Controller) submit(task dispatchTask) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: controller is shutting down", core.ErrUpstreamUnavailable)
	}
	select {
	case c.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w: dispatch queue is full", core.ErrUpstreamUnavailable)
	}
}

// selectPages keeps the pages whose number is in wanted, in page order.
// An empty filter keeps every page.
func selectPages(pages []core.Page, wanted []int) []core.Page {
	var selected []core.Page
	if len(wanted) == 0 {
		selected = append(selected, pages...)
	} else {
		set := make(map[int]struct{}, len(wanted))
		for _, n := range wanted {
			set[n] = struct{}{}
		}
		for _, p := range pages {
			if _, ok := set[p.PageNumber]; ok {
				selected = append(selected, p)
			}
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].PageNumber < selected[j].PageNumber
	})
	return selected
}

func (c *Controller) worker() {
	defer c.wg.Done()
	for task := range c.tasks {
		c.dispatch(c.baseCtx, task)
	}
}

// dispatch sends one job to the print server. It is attempted once.
func (c *Controller) dispatch(ctx context.Context, task dispatchTask) {
	logger := c.logger.With("job_id", task.jobID)

	if _, err := c.jobs.Transition(ctx, task.jobID, core.JobStatusSending, ""); err != nil {
		logger.Warn("job not dispatchable", "error", err)
		return
	}

	start := c.now()
	resp, err := c.server.Submit(ctx, task.payload)
	metrics.DispatchDuration.WithLabelValues(metrics.Result(err)).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		c.finish(ctx, task.jobID, core.JobStatusFailed, err.Error())
		return
	}

	job, err := c.jobs.Transition(ctx, task.jobID, core.JobStatusPrinting, "")
	if errors.Is(err, store.ErrInvalidTransition) {
		logger.Info("completion arrived before dispatch returned", "status", job.Status)
		return
	}
	if err != nil {
		logger.Error("failed to record printing", "error", err)
		return
	}
	logger.Info("job accepted by print server", "queue_position", resp.QueuePosition)
}

func (c *Controller) finish(ctx context.Context, jobID string, status core.JobStatus, errMsg string) bool {
	_, err := c.jobs.Transition(ctx, jobID, status, errMsg)
	if err != nil {
		c.logger.Warn("job status not updated", "job_id", jobID, "status", status, "error", err)
		return false
	}
	metrics.JobsFinished.WithLabelValues(string(status)).Inc()
	return true
}

// GetPrintStatus returns the job as currently recorded.
func (c *Controller) GetPrintStatus(ctx context.Context, jobID string) (*core.PrintJob, error) {
	return c.jobs.Get(ctx, jobID)
}

// GetPrinterStatus never fails: an unreachable print server is reported
// as offline.
func (c *Controller) GetPrinterStatus(ctx context.Context) core.PrinterStatusReport {
	status, err := c.server.PrinterStatus(ctx)
	if err != nil {
		c.logger.Warn("print server unreachable", "error", err)
		return core.PrinterStatusReport{
			Online:  false,
			Status:  StatusOffline,
			Message: "Print server is unreachable",
		}
	}

	report := core.PrinterStatusReport{
		Status:  status.Status,
		Message: status.Message,
	}
	if report.Status == "" {
		report.Status = StatusOffline
	}
	report.Online = status.Success && report.Status != StatusOffline
	return report
}

// HandlePrintComplete records the print server's verdict. Notices for jobs
// that already finished, or were never dispatched, are acknowledged and
// ignored.
func (c *Controller) HandlePrintComplete(ctx context.Context, notice core.CompletionNotice) error {
	if notice.JobID == "" {
		return fmt.Errorf("%w: jobId is required", core.ErrValidation)
	}

	next := core.JobStatusCompleted
	errMsg := notice.Error
	if !notice.Success {
		next = core.JobStatusFailed
		if errMsg == "" {
			errMsg = "print failed"
		}
	}

	job, err := c.jobs.Transition(ctx, notice.JobID, next, errMsg)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		c.logger.Info("ignoring completion",
			"job_id", notice.JobID, "status", job.Status, "success", notice.Success)
		return nil
	case err != nil:
		return err
	}

	metrics.JobsFinished.WithLabelValues(string(next)).Inc()
	c.logger.Info("print job finished", "job_id", notice.JobID, "status", next, "error", errMsg)
	return nil
}

// Reconcile fails printing jobs that have gone quiet for longer than
// StaleAfter and that the print server no longer holds. It returns how
// many jobs it failed.
func (c *Controller) Reconcile(ctx context.Context) (int, error) {
	if c.staleAfter <= 0 {
		return 0, nil
	}

	stale, err := c.jobs.ListStale(ctx, core.JobStatusPrinting, c.now().Add(-c.staleAfter))
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	snap, err := c.server.Queue(ctx)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, job := range stale {
		if snap.Contains(job.JobID) {
			continue
		}
		if c.finish(ctx, job.JobID, core.JobStatusFailed, lostCompletionMessage) {
			c.logger.Warn("marked stale job failed", "job_id", job.JobID, "last_update", job.UpdatedAt)
			failed++
		}
	}
	return failed, nil
}

func (c *Controller) reconcileLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if _, err := c.Reconcile(c.baseCtx); err != nil {
				c.logger.Warn("reconcile skipped", "error", err)
			}
		}
	}
}

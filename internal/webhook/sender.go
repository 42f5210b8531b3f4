// Package webhook delivers job completion notices from the print server
// back to the controller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/orrn/diaryprint/internal/auth"
	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/metrics"
)

const (
	CompletePath = "/api/print/complete"
	EventHeader  = "X-Webhook-Event"
	EventName    = "print.complete"
)

var ErrStopped = errors.New("webhook sender stopped")

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("http error: %d", e.code)
	}
	return fmt.Sprintf("http error: %d: %s", e.code, e.body)
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}

type task struct {
	notice  core.CompletionNotice
	attempt int
}

type Sender struct {
	endpoint    string
	httpClient  *http.Client
	issuer      *auth.Issuer
	maxAttempts int
	retryDelay  time.Duration
	workers     int
	logger      *slog.Logger

	mu        sync.Mutex
	closed    bool
	queue     chan *task
	abort     chan struct{}
	abortOnce sync.Once
	wg        sync.WaitGroup
}

// NewSender posts notices to backendURL + CompletePath. issuer may be nil
// when service authentication is disabled.
func NewSender(cfg config.WebhookConfig, backendURL string, issuer *auth.Issuer, logger *slog.Logger) *Sender {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sender{
		endpoint: strings.TrimRight(backendURL, "/") + CompletePath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		issuer:      issuer,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		workers:     cfg.Workers,
		logger:      logger.With("component", "webhook"),
		queue:       make(chan *task, cfg.QueueSize),
		abort:       make(chan struct{}),
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop delivers what is already queued, cutting retry backoff short once
// ctx expires. It is safe to call more than once.
func (s *Sender) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.abortOnce.Do(func() { close(s.abort) })
		<-done
		return ctx.Err()
	}
}

// NotifyCompletion queues a notice and returns immediately. Notices are
// dropped, with a log line, when the queue is full or the sender stopped.
func (s *Sender) NotifyCompletion(jobID string, success bool, errMsg string) {
	t := &task{notice: core.CompletionNotice{JobID: jobID, Success: success, Error: errMsg}}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("sender stopped, dropping completion", "job_id", jobID)
		metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case s.queue <- t:
	default:
		s.logger.Warn("queue full, dropping completion", "job_id", jobID)
		metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()

	for t := range s.queue {
		err := s.sendWithRetry(t)
		metrics.WebhookDeliveries.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			s.logger.Error("completion not delivered",
				"worker", id, "job_id", t.notice.JobID, "attempts", t.attempt, "error", err)
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.maxAttempts {
		t.attempt++

		err := s.send(t.notice)
		if err == nil {
			s.logger.Info("completion delivered", "job_id", t.notice.JobID, "success", t.notice.Success, "attempt", t.attempt)
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.maxAttempts {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			s.logger.Warn("delivery failed, retrying",
				"job_id", t.notice.JobID, "attempt", t.attempt, "max_attempts", s.maxAttempts, "backoff", backoff, "error", err)

			select {
			case <-s.abort:
				return fmt.Errorf("%w: %v", ErrStopped, lastErr)
			case <-time.After(backoff):
			}
		}
	}

	if s.maxAttempts > 1 {
		return fmt.Errorf("max attempts exceeded: %w", lastErr)
	}
	return lastErr
}

func (s *Sender) send(notice core.CompletionNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, EventName)
	if err := s.issuer.Authorize(req); err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}

// Package printer drives the single physical printer attached to the print
// server. A Driver turns a queued diary into temp image files and hands
// them one at a time to a Backend.
package printer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/metrics"
)

var (
	ErrNoPages      = errors.New("job has no pages")
	ErrInvalidImage = errors.New("invalid page image")
)

// Backend is the single-page print primitive for one printer.
type Backend interface {
	Name() string
	Status(ctx context.Context) core.PrinterStatus
	PrintImage(ctx context.Context, path string) error
}

type Options struct {
	PageDelay time.Duration
	TempDir   string
	Logger    *slog.Logger
}

type Driver struct {
	backend   Backend
	pageDelay time.Duration
	tempDir   string
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewDriver(backend Backend, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		backend:   backend,
		pageDelay: opts.PageDelay,
		tempDir:   opts.TempDir,
		logger:    logger.With("component", "printer", "backend", backend.Name()),
		sleep:     sleepContext,
	}
}

// New builds a Driver for the configured backend. "auto" selects CUPS on
// Linux and the simulator everywhere else.
func New(cfg config.PrinterConfig, logger *slog.Logger) (*Driver, error) {
	backend, err := newBackend(cfg, runtime.GOOS)
	if err != nil {
		return nil, err
	}
	return NewDriver(backend, Options{
		PageDelay: cfg.PageDelay,
		TempDir:   cfg.TempDir,
		Logger:    logger,
	}), nil
}

func newBackend(cfg config.PrinterConfig, goos string) (Backend, error) {
	quality, ok := config.QualityLevels[cfg.Quality]
	if !ok {
		return nil, fmt.Errorf("unknown print quality %q", cfg.Quality)
	}

	kind := cfg.Backend
	if kind == config.BackendAuto || kind == "" {
		kind = config.BackendSimulate
		if goos == "linux" {
			kind = config.BackendCUPS
		}
	}

	switch kind {
	case config.BackendCUPS:
		return NewCUPS(cfg.Name, cfg.PaperSize, quality, cfg.SettleTime), nil
	case config.BackendIPP:
		return NewIPP(cfg, quality), nil
	case config.BackendSimulate:
		return NewSimulator(cfg.SettleTime), nil
	}
	return nil, fmt.Errorf("unknown printer backend %q", cfg.Backend)
}

func (d *Driver) BackendName() string {
	return d.backend.Name()
}

// CheckStatus never fails; backend problems are reported as unavailable.
func (d *Driver) CheckStatus(ctx context.Context) core.PrinterStatus {
	return d.backend.Status(ctx)
}

// PrintDiary prints every page of entry in order with the configured delay
// between pages. The first failing page aborts the job.
func (d *Driver) PrintDiary(ctx context.Context, entry *core.QueueEntry) error {
	if len(entry.Pages) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPages, entry.JobID)
	}

	logger := d.logger.With("job_id", entry.JobID)
	logger.Info("printing diary", "diary_id", entry.DiaryID, "pages", len(entry.Pages))

	for i, page := range entry.Pages {
		if err := d.printPage(ctx, entry.JobID, entry.MimeType, page); err != nil {
			logger.Error("page failed", "page", page.PageNumber, "error", err)
			return fmt.Errorf("page %d: %w", page.PageNumber, err)
		}
		metrics.PagesPrinted.Inc()
		logger.Debug("page printed", "page", page.PageNumber, "index", i+1, "of", len(entry.Pages))

		if i < len(entry.Pages)-1 && d.pageDelay > 0 {
			if err := d.sleep(ctx, d.pageDelay); err != nil {
				return err
			}
		}
	}

	logger.Info("diary printed", "pages", len(entry.Pages))
	return nil
}

func (d *Driver) printPage(ctx context.Context, jobID, mimeType string, page core.Page) error {
	data, err := decodeImage(page.ImageData)
	if err != nil {
		return err
	}

	pattern := fmt.Sprintf("diary_%s_page_%d_*%s", sanitize(jobID), page.PageNumber, extensionFor(mimeType))
	f, err := os.CreateTemp(d.tempDir, pattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", core.ErrPrintExecution, err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write temp file: %v", core.ErrPrintExecution, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", core.ErrPrintExecution, err)
	}

	return d.backend.PrintImage(ctx, path)
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(imageData string) ([]byte, error) {
	payload := strings.TrimSpace(imageData)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidImage)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty image data", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png", "":
		return ".png"
	case "application/pdf":
		return ".pdf"
	}
	return ".img"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

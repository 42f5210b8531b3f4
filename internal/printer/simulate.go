package printer

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/orrn/diaryprint/internal/core"
)

// Simulator stands in for a printer on development machines. It always
// reports ready and only checks that the page file exists.
type Simulator struct {
	settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSimulator(settle time.Duration) *Simulator {
	return &Simulator{settle: settle, sleep: sleepContext}
}

func (s *Simulator) Name() string { return "simulate" }

func (s *Simulator) Status(context.Context) core.PrinterStatus {
	return core.PrinterStatus{
		Available: true,
		Message:   "Printer simulation mode",
		Details:   "simulated printer on " + runtime.GOOS,
	}
}

func (s *Simulator) PrintImage(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %v", core.ErrPrintExecution, err)
	}
	return s.sleep(ctx, s.settle)
}

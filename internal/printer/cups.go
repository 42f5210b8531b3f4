package printer

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/orrn/diaryprint/internal/core"
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CUPS prints through the local spooler with lp and asks lpstat for state.
type CUPS struct {
	printer   string
	paperSize string
	quality   int
	settle    time.Duration
	run       CommandRunner
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewCUPS(printer, paperSize string, quality int, settle time.Duration) *CUPS {
	return &CUPS{
		printer:   printer,
		paperSize: paperSize,
		quality:   quality,
		settle:    settle,
		run:       execRunner,
		sleep:     sleepContext,
	}
}

func (c *CUPS) Name() string { return "cups" }

func (c *CUPS) Status(ctx context.Context) core.PrinterStatus {
	out, err := c.run(ctx, "lpstat", "-p", c.printer)
	if err != nil {
		details := err.Error()
		if text := strings.TrimSpace(string(out)); text != "" {
			details += ": " + text
		}
		return core.PrinterStatus{
			Available: false,
			Message:   "Printer status check failed",
			Details:   details,
		}
	}

	text := strings.TrimSpace(string(out))
	if lpstatReady(text) {
		return core.PrinterStatus{Available: true, Message: "Printer is ready", Details: text}
	}
	return core.PrinterStatus{Available: false, Message: "Printer is not ready", Details: text}
}

// lpstatReady interprets `lpstat -p` output such as
// "printer X is idle.  enabled since ..." or "printer X disabled since ...".
func lpstatReady(output string) bool {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "disabled") {
		return false
	}
	return strings.Contains(lower, "idle") || strings.Contains(lower, "enabled")
}

func (c *CUPS) PrintImage(ctx context.Context, path string) error {
	out, err := c.run(ctx, "lp", c.lpArgs(path)...)
	if err != nil {
		return fmt.Errorf("%w: lp: %v: %s", core.ErrPrintExecution, err, strings.TrimSpace(string(out)))
	}
	// lp returns once the spooler has the file, not when paper comes out.
	return c.sleep(ctx, c.settle)
}

func (c *CUPS) lpArgs(path string) []string {
	return []string{
		"-d", c.printer,
		"-o", "media=" + c.paperSize,
		"-o", "print-quality=" + strconv.Itoa(c.quality),
		"-o", "fit-to-page",
		path,
	}
}

package printer

import (
	"context"
	"fmt"
	"time"

	"github.com/phin1x/go-ipp"

	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/core"
)

const (
	attrPrinterState        = "printer-state"
	attrPrinterStateMessage = "printer-state-message"
	attrAcceptingJobs       = "printer-is-accepting-jobs"
	attrMedia               = "media"
	attrPrintQuality        = "print-quality"
)

// printer-state enum values from RFC 8011.
const (
	ippStateIdle       = 3
	ippStateProcessing = 4
	ippStateStopped    = 5
)

type ippClient interface {
	GetPrinterAttributes(printer string, attributes []string) (ipp.Attributes, error)
	PrintFile(filePath, printer string, jobAttributes map[string]interface{}) (int, error)
}

// IPP talks to a network printer or a remote CUPS queue over IPP.
type IPP struct {
	client    ippClient
	printer   string
	paperSize string
	quality   int
	settle    time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewIPP(cfg config.PrinterConfig, quality int) *IPP {
	client := ipp.NewIPPClient(cfg.IPPHost, cfg.IPPPort, cfg.IPPUser, cfg.IPPPassword, cfg.IPPTLS)
	return newIPPWithClient(client, cfg.Name, cfg.PaperSize, quality, cfg.SettleTime)
}

func newIPPWithClient(client ippClient, printer, paperSize string, quality int, settle time.Duration) *IPP {
	return &IPP{
		client:    client,
		printer:   printer,
		paperSize: paperSize,
		quality:   quality,
		settle:    settle,
		sleep:     sleepContext,
	}
}

func (p *IPP) Name() string { return "ipp" }

func (p *IPP) Status(context.Context) core.PrinterStatus {
	attrs, err := p.client.GetPrinterAttributes(p.printer, []string{
		attrPrinterState, attrPrinterStateMessage, attrAcceptingJobs,
	})
	if err != nil {
		return core.PrinterStatus{
			Available: false,
			Message:   "Printer status check failed",
			Details:   err.Error(),
		}
	}

	state, _ := firstInt(attrs, attrPrinterState)
	accepting, ok := firstBool(attrs, attrAcceptingJobs)
	if !ok {
		accepting = true
	}
	details, _ := firstString(attrs, attrPrinterStateMessage)

	switch {
	case state == ippStateStopped:
		return core.PrinterStatus{Available: false, Message: "Printer is stopped", Details: details}
	case !accepting:
		return core.PrinterStatus{Available: false, Message: "Printer is not accepting jobs", Details: details}
	case state == ippStateIdle || state == ippStateProcessing:
		return core.PrinterStatus{Available: true, Message: "Printer is ready", Details: details}
	}
	return core.PrinterStatus{
		Available: false,
		Message:   "Printer is not ready",
		Details:   fmt.Sprintf("unknown printer-state %d", state),
	}
}

func (p *IPP) PrintImage(ctx context.Context, path string) error {
	_, err := p.client.PrintFile(path, p.printer, map[string]interface{}{
		attrMedia:        p.paperSize,
		attrPrintQuality: p.quality,
	})
	if err != nil {
		return fmt.Errorf("%w: ipp: %v", core.ErrPrintExecution, err)
	}
	return p.sleep(ctx, p.settle)
}

func firstValue(attrs ipp.Attributes, name string) (interface{}, bool) {
	values, ok := attrs[name]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return values[0].Value, true
}

func firstInt(attrs ipp.Attributes, name string) (int, bool) {
	v, ok := firstValue(attrs, name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

func firstBool(attrs ipp.Attributes, name string) (bool, bool) {
	v, ok := firstValue(attrs, name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func firstString(attrs ipp.Attributes, name string) (string, bool) {
	v, ok := firstValue(attrs, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phin1x/go-ipp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/diaryprint/internal/core"
)

type fakeIPPClient struct {
	attrs     ipp.Attributes
	attrsErr  error
	printErr  error
	printed   []string
	jobAttrs  map[string]interface{}
	requested []string
}

func (f *fakeIPPClient) GetPrinterAttributes(_ string, attributes []string) (ipp.Attributes, error) {
	f.requested = attributes
	return f.attrs, f.attrsErr
}

func (f *fakeIPPClient) PrintFile(filePath, _ string, jobAttributes map[string]interface{}) (int, error) {
	f.printed = append(f.printed, filePath)
	f.jobAttrs = jobAttributes
	return len(f.printed), f.printErr
}

func attrs(state int, accepting bool, message string) ipp.Attributes {
	return ipp.Attributes{
		attrPrinterState:        {{Name: attrPrinterState, Value: state}},
		attrAcceptingJobs:       {{Name: attrAcceptingJobs, Value: accepting}},
		attrPrinterStateMessage: {{Name: attrPrinterStateMessage, Value: message}},
	}
}

func TestIPP_Status(t *testing.T) {
	tests := []struct {
		name      string
		attrs     ipp.Attributes
		err       error
		available bool
		message   string
	}{
		{name: "idle", attrs: attrs(ippStateIdle, true, ""), available: true, message: "Printer is ready"},
		{name: "processing", attrs: attrs(ippStateProcessing, true, "printing"), available: true, message: "Printer is ready"},
		{name: "stopped", attrs: attrs(ippStateStopped, true, "out of paper"), message: "Printer is stopped"},
		{name: "not accepting", attrs: attrs(ippStateIdle, false, ""), message: "Printer is not accepting jobs"},
		{name: "unknown state", attrs: attrs(9, true, ""), message: "Printer is not ready"},
		{name: "unreachable", err: errors.New("connection refused"), message: "Printer status check failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeIPPClient{attrs: tt.attrs, attrsErr: tt.err}
			p := newIPPWithClient(client, "selphy", "Postcard", 5, 0)

			status := p.Status(context.Background())
			assert.Equal(t, tt.available, status.Available)
			assert.Equal(t, tt.message, status.Message)
		})
	}
}

func TestIPP_PrintImage(t *testing.T) {
	client := &fakeIPPClient{}
	p := newIPPWithClient(client, "selphy", "Postcard", 5, 3*time.Second)
	var settled time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		settled = d
		return nil
	}

	require.NoError(t, p.PrintImage(context.Background(), "/tmp/page.png"))
	assert.Equal(t, []string{"/tmp/page.png"}, client.printed)
	assert.Equal(t, "Postcard", client.jobAttrs[attrMedia])
	assert.Equal(t, 5, client.jobAttrs[attrPrintQuality])
	assert.Equal(t, 3*time.Second, settled)
}

func TestIPP_PrintImageFailure(t *testing.T) {
	client := &fakeIPPClient{printErr: errors.New("client-error-document-format-not-supported")}
	p := newIPPWithClient(client, "selphy", "Postcard", 5, 0)

	err := p.PrintImage(context.Background(), "/tmp/page.png")
	assert.ErrorIs(t, err, core.ErrPrintExecution)
}

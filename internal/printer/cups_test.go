package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/diaryprint/internal/core"
)

type recordedCommand struct {
	name string
	args []string
}

func fakeRunner(out string, err error, calls *[]recordedCommand) CommandRunner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCommand{name: name, args: args})
		return []byte(out), err
	}
}

func TestLpstatReady(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"printer Canon_SELPHY_CP1500 is idle.  enabled since Mon 01 Jan 2024", true},
		{"printer Canon_SELPHY_CP1500 now printing Canon-12.  enabled since Mon", true},
		{"printer Canon_SELPHY_CP1500 disabled since Mon 01 Jan 2024 -\n\tPaused", false},
		{"lpstat: Invalid destination name in list \"Nope\"", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, lpstatReady(tt.output), tt.output)
	}
}

func TestCUPS_Status(t *testing.T) {
	var calls []recordedCommand
	c := NewCUPS("Canon_SELPHY_CP1500", "Postcard", 5, 0)
	c.run = fakeRunner("printer Canon_SELPHY_CP1500 is idle.  enabled since today", nil, &calls)

	status := c.Status(context.Background())
	assert.True(t, status.Available)
	assert.Equal(t, "Printer is ready", status.Message)
	require.Len(t, calls, 1)
	assert.Equal(t, "lpstat", calls[0].name)
	assert.Equal(t, []string{"-p", "Canon_SELPHY_CP1500"}, calls[0].args)
}

func TestCUPS_StatusCommandFailureIsReported(t *testing.T) {
	var calls []recordedCommand
	c := NewCUPS("P", "Postcard", 5, 0)
	c.run = fakeRunner("lpstat: not found", errors.New("exit status 1"), &calls)

	status := c.Status(context.Background())
	assert.False(t, status.Available)
	assert.Contains(t, status.Details, "exit status 1")
	assert.Contains(t, status.Details, "lpstat: not found")
}

func TestCUPS_PrintImage(t *testing.T) {
	var calls []recordedCommand
	c := NewCUPS("Canon_SELPHY_CP1500", "Postcard", 5, 5*time.Second)
	c.run = fakeRunner("request id is Canon-7 (1 file(s))", nil, &calls)
	var settled time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		settled = d
		return nil
	}

	require.NoError(t, c.PrintImage(context.Background(), "/tmp/page.png"))
	require.Len(t, calls, 1)
	assert.Equal(t, "lp", calls[0].name)
	assert.Equal(t, []string{
		"-d", "Canon_SELPHY_CP1500",
		"-o", "media=Postcard",
		"-o", "print-quality=5",
		"-o", "fit-to-page",
		"/tmp/page.png",
	}, calls[0].args)
	assert.Equal(t, 5*time.Second, settled)
}

func TestCUPS_PrintImageFailure(t *testing.T) {
	var calls []recordedCommand
	c := NewCUPS("P", "Postcard", 5, time.Second)
	c.run = fakeRunner("lp: The printer or class does not exist.", errors.New("exit status 1"), &calls)
	c.sleep = func(context.Context, time.Duration) error {
		t.Fatal("settle must not run after a failed lp")
		return nil
	}

	err := c.PrintImage(context.Background(), "/tmp/page.png")
	assert.ErrorIs(t, err, core.ErrPrintExecution)
	assert.Contains(t, err.Error(), "does not exist")
}

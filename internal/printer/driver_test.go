package printer

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/diaryprint/internal/config"
	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/logger"
)

type fakeBackend struct {
	mu       sync.Mutex
	contents []string
	paths    []string
	failOn   int
	failErr  error
	status   core.PrinterStatus
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Status(context.Context) core.PrinterStatus { return f.status }

func (f *fakeBackend) PrintImage(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.paths = append(f.paths, path)
	f.contents = append(f.contents, string(data))
	if f.failOn > 0 && len(f.paths) == f.failOn {
		return f.failErr
	}
	return nil
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newTestDriver(t *testing.T, backend Backend, delay time.Duration) (*Driver, *[]time.Duration, string) {
	t.Helper()
	dir := t.TempDir()
	d := NewDriver(backend, Options{PageDelay: delay, TempDir: dir, Logger: logger.Discard()})
	var sleeps []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return nil
	}
	return d, &sleeps, dir
}

func entryWithPages(contents ...string) *core.QueueEntry {
	pages := make([]core.Page, len(contents))
	for i, c := range contents {
		pages[i] = core.Page{PageNumber: i + 1, ImageData: encode(c)}
	}
	return &core.QueueEntry{JobID: "print_1_abc", DiaryID: "D1", MimeType: "image/png", Pages: pages}
}

func TestDriver_PrintDiary_PagesInOrder(t *testing.T) {
	backend := &fakeBackend{}
	d, sleeps, dir := newTestDriver(t, backend, 2*time.Second)

	err := d.PrintDiary(context.Background(), entryWithPages("one", "two", "three"))
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, backend.contents)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *sleeps, "delay only between pages")

	for _, p := range backend.paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "temp file %s should be removed", p)
	}
	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDriver_PrintDiary_AbortsOnFailingPage(t *testing.T) {
	backend := &fakeBackend{failOn: 2, failErr: errors.New("paper jam")}
	d, _, dir := newTestDriver(t, backend, time.Second)

	err := d.PrintDiary(context.Background(), entryWithPages("one", "two", "three"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paper jam")
	assert.Contains(t, err.Error(), "page 2")

	assert.Len(t, backend.paths, 2, "page 3 must not be attempted")

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDriver_PrintDiary_SinglePageNoDelay(t *testing.T) {
	backend := &fakeBackend{}
	d, sleeps, _ := newTestDriver(t, backend, time.Second)

	require.NoError(t, d.PrintDiary(context.Background(), entryWithPages("only")))
	assert.Empty(t, *sleeps)
}

func TestDriver_PrintDiary_InvalidImage(t *testing.T) {
	backend := &fakeBackend{}
	d, _, _ := newTestDriver(t, backend, 0)

	entry := &core.QueueEntry{JobID: "j", Pages: []core.Page{{PageNumber: 1, ImageData: "not base64!!"}}}
	err := d.PrintDiary(context.Background(), entry)
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Empty(t, backend.paths)
}

func TestDriver_PrintDiary_NoPages(t *testing.T) {
	d, _, _ := newTestDriver(t, &fakeBackend{}, 0)
	err := d.PrintDiary(context.Background(), &core.QueueEntry{JobID: "j"})
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestDecodeImage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "raw base64", input: encode("png-bytes"), want: "png-bytes"},
		{name: "data url", input: "data:image/png;base64," + encode("png-bytes"), want: "png-bytes"},
		{name: "surrounding whitespace", input: "  " + encode("x") + "\n", want: "x"},
		{name: "data url without comma", input: "data:image/png;base64", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "%%%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeImage(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewBackend_Selection(t *testing.T) {
	base := config.PrinterConfig{Name: "P", PaperSize: "Postcard", Quality: "high"}

	tests := []struct {
		name    string
		backend string
		goos    string
		want    string
		wantErr bool
	}{
		{name: "auto on linux", backend: config.BackendAuto, goos: "linux", want: "cups"},
		{name: "auto on darwin", backend: config.BackendAuto, goos: "darwin", want: "simulate"},
		{name: "explicit cups", backend: config.BackendCUPS, goos: "windows", want: "cups"},
		{name: "explicit simulate", backend: config.BackendSimulate, goos: "linux", want: "simulate"},
		{name: "ipp", backend: config.BackendIPP, goos: "linux", want: "ipp"},
		{name: "unknown", backend: "carrier-pigeon", goos: "linux", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Backend = tt.backend
			cfg.IPPHost = "printer.local"
			cfg.IPPPort = 631
			b, err := newBackend(cfg, tt.goos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}
}

func TestNewBackend_RejectsUnknownQuality(t *testing.T) {
	_, err := newBackend(config.PrinterConfig{Backend: config.BackendSimulate, Quality: "ultra"}, "linux")
	assert.Error(t, err)
}

func TestSimulator(t *testing.T) {
	s := NewSimulator(5 * time.Second)
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	assert.True(t, s.Status(context.Background()).Available)

	path := t.TempDir() + "/page.png"
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, s.PrintImage(context.Background(), path))
	assert.Equal(t, 5*time.Second, slept)

	err := s.PrintImage(context.Background(), path+".missing")
	assert.ErrorIs(t, err, core.ErrPrintExecution)
}

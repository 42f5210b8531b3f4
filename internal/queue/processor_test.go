package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/logger"
)

type notification struct {
	jobID   string
	success bool
	errMsg  string
}

type fakeNotifier struct {
	ch chan notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan notification, 16)}
}

func (n *fakeNotifier) NotifyCompletion(jobID string, success bool, errMsg string) {
	n.ch <- notification{jobID: jobID, success: success, errMsg: errMsg}
}

func (n *fakeNotifier) next(t *testing.T) notification {
	t.Helper()
	select {
	case got := <-n.ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return notification{}
	}
}

type call struct {
	jobID string
	start time.Time
	end   time.Time
}

type fakeDriver struct {
	mu       sync.Mutex
	duration time.Duration
	errs     map[string]error
	calls    []call
	active   int
	maxSeen  int
	release  chan struct{}
}

func (d *fakeDriver) PrintDiary(_ context.Context, entry *core.QueueEntry) error {
	d.mu.Lock()
	d.active++
	if d.active > d.maxSeen {
		d.maxSeen = d.active
	}
	start := time.Now()
	d.mu.Unlock()

	if d.release != nil {
		<-d.release
	}
	time.Sleep(d.duration)

	d.mu.Lock()
	d.active--
	d.calls = append(d.calls, call{jobID: entry.JobID, start: start, end: time.Now()})
	err := d.errs[entry.JobID]
	d.mu.Unlock()
	return err
}

func (d *fakeDriver) snapshot() ([]call, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]call(nil), d.calls...), d.maxSeen
}

func payload(jobID string) core.PrintPayload {
	return core.PrintPayload{
		JobID:   jobID,
		DiaryID: "D1",
		Title:   "Trip",
		Pages:   []core.Page{{PageNumber: 1, ImageData: "aGk="}},
	}
}

func newTestProcessor(driver Driver, notifier Notifier, cooldown time.Duration) *Processor {
	return NewProcessor(driver, notifier, Options{Cooldown: cooldown, Logger: logger.Discard()})
}

func TestEnqueue_Validation(t *testing.T) {
	p := newTestProcessor(&fakeDriver{}, newFakeNotifier(), 0)

	_, err := p.Enqueue(core.PrintPayload{Pages: []core.Page{{PageNumber: 1}}})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = p.Enqueue(core.PrintPayload{JobID: "j1"})
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, 0, p.Len())
}

func TestEnqueue_SequentialExclusiveWithCooldown(t *testing.T) {
	driver := &fakeDriver{duration: 150 * time.Millisecond}
	notifier := newFakeNotifier()
	cooldown := 50 * time.Millisecond
	p := newTestProcessor(driver, notifier, cooldown)

	_, err := p.Enqueue(payload("job-1"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = p.Enqueue(payload("job-2"))
	require.NoError(t, err)

	first := notifier.next(t)
	second := notifier.next(t)
	assert.Equal(t, "job-1", first.jobID)
	assert.Equal(t, "job-2", second.jobID)

	calls, maxSeen := driver.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, 1, maxSeen, "driver must never run two jobs at once")
	assert.False(t, calls[1].start.Before(calls[0].end.Add(cooldown)),
		"second job started %v after first ended", calls[1].start.Sub(calls[0].end))
}

func TestEnqueue_FIFOOrder(t *testing.T) {
	driver := &fakeDriver{}
	notifier := newFakeNotifier()
	p := newTestProcessor(driver, notifier, 0)

	jobs := []string{"a", "b", "c", "d", "e"}
	for _, id := range jobs {
		_, err := p.Enqueue(payload(id))
		require.NoError(t, err)
	}

	var got []string
	for range jobs {
		got = append(got, notifier.next(t).jobID)
	}
	assert.Equal(t, jobs, got)
}

func TestEnqueue_CooldownAppliesToJobsArrivingLater(t *testing.T) {
	driver := &fakeDriver{}
	notifier := newFakeNotifier()
	cooldown := 100 * time.Millisecond
	p := newTestProcessor(driver, notifier, cooldown)

	_, err := p.Enqueue(payload("first"))
	require.NoError(t, err)
	notifier.next(t)

	_, err = p.Enqueue(payload("second"))
	require.NoError(t, err)
	notifier.next(t)

	calls, _ := driver.snapshot()
	require.Len(t, calls, 2)
	assert.False(t, calls[1].start.Before(calls[0].end.Add(cooldown)))
}

func TestDrain_FailureIsReported(t *testing.T) {
	driver := &fakeDriver{errs: map[string]error{"bad": errors.New("page 2: paper jam")}}
	notifier := newFakeNotifier()
	p := newTestProcessor(driver, notifier, 0)

	_, err := p.Enqueue(payload("bad"))
	require.NoError(t, err)
	_, err = p.Enqueue(payload("good"))
	require.NoError(t, err)

	got := notifier.next(t)
	assert.Equal(t, notification{jobID: "bad", success: false, errMsg: "page 2: paper jam"}, got)

	got = notifier.next(t)
	assert.Equal(t, notification{jobID: "good", success: true}, got)
	assert.False(t, p.IsPrinting())
}

type panicDriver struct{}

func (panicDriver) PrintDiary(context.Context, *core.QueueEntry) error {
	panic("boom")
}

func TestDrain_DriverPanicFailsJob(t *testing.T) {
	notifier := newFakeNotifier()
	p := newTestProcessor(panicDriver{}, notifier, 0)

	_, err := p.Enqueue(payload("job"))
	require.NoError(t, err)

	got := notifier.next(t)
	assert.False(t, got.success)
	assert.Contains(t, got.errMsg, "boom")
}

func TestEnqueue_DuplicateAndSnapshot(t *testing.T) {
	driver := &fakeDriver{release: make(chan struct{})}
	notifier := newFakeNotifier()
	p := newTestProcessor(driver, notifier, 0)

	pos, err := p.Enqueue(payload("job-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	require.Eventually(t, p.IsPrinting, time.Second, 5*time.Millisecond)

	pos, err = p.Enqueue(payload("job-2"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = p.Enqueue(payload("job-1"))
	assert.ErrorIs(t, err, core.ErrConflict, "printing job id")
	_, err = p.Enqueue(payload("job-2"))
	assert.ErrorIs(t, err, core.ErrConflict, "queued job id")

	snap := p.Snapshot()
	assert.True(t, snap.Success)
	assert.True(t, snap.IsPrinting)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "job-1", snap.Current.JobID)
	assert.Equal(t, core.QueueEntryPrinting, snap.Current.Status)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "job-2", snap.Queue[0].JobID)
	assert.Equal(t, 1, snap.Queue[0].PageCount)
	assert.Equal(t, "image/png", snap.Queue[0].MimeType)
	assert.True(t, snap.Contains("job-1"))
	assert.True(t, snap.Contains("job-2"))
	assert.Equal(t, 1, p.Len())

	close(driver.release)
	notifier.next(t)
	notifier.next(t)
}

func TestStop_WaitsForInFlightJob(t *testing.T) {
	driver := &fakeDriver{release: make(chan struct{})}
	notifier := newFakeNotifier()
	p := newTestProcessor(driver, notifier, 0)

	_, err := p.Enqueue(payload("job-1"))
	require.NoError(t, err)
	_, err = p.Enqueue(payload("job-2"))
	require.NoError(t, err)
	require.Eventually(t, p.IsPrinting, time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was printing")
	case <-time.After(50 * time.Millisecond):
	}

	close(driver.release)
	require.NoError(t, <-stopped)
	assert.Equal(t, "job-1", notifier.next(t).jobID)

	calls, _ := driver.snapshot()
	assert.Len(t, calls, 1, "queued job must not start after Stop")

	_, err = p.Enqueue(payload("job-3"))
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestStop_ContextExpires(t *testing.T) {
	driver := &fakeDriver{release: make(chan struct{})}
	p := newTestProcessor(driver, newFakeNotifier(), 0)

	_, err := p.Enqueue(payload("job-1"))
	require.NoError(t, err)
	require.Eventually(t, p.IsPrinting, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)

	close(driver.release)
}

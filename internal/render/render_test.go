package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slidecast/internal/jobs"
	"slidecast/internal/metrics"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services"
	"slidecast/internal/services/encoder"
	"slidecast/internal/services/storage"
	"slidecast/internal/services/tts"
	"slidecast/internal/testsupport"
	"slidecast/internal/timeline"
)

type fakeEncoder struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	fn      func(ctx context.Context, call int, progress func(encoder.ProgressUpdate)) ([]byte, error)
}

func (f *fakeEncoder) Encode(ctx context.Context, tl timeline.Timeline, audio []encoder.SceneAudio, spec encoder.OutputSpec, progress func(encoder.ProgressUpdate)) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if len(audio) != len(tl.Scenes) {
		return nil, errors.New("audio/scene mismatch")
	}
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	return f.fn(ctx, call, progress)
}

func (f *fakeEncoder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeed(_ context.Context, _ int, progress func(encoder.ProgressUpdate)) ([]byte, error) {
	progress(encoder.ProgressUpdate{Percent: 50})
	progress(encoder.ProgressUpdate{Percent: 100})
	return []byte("VIDEO"), nil
}

type harness struct {
	store   *jobs.Store
	broker  renderqueue.Broker
	storage *storage.Local
	enc     *fakeEncoder
	pool    *Pool
}

func newHarness(t *testing.T, fn func(context.Context, int, func(encoder.ProgressUpdate)) ([]byte, error)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	broker, err := renderqueue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	local, err := storage.NewLocal(cfg.Storage.LocalDir, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	enc := &fakeEncoder{fn: fn, started: make(chan struct{}, 1)}
	pool, err := NewPool(Dependencies{
		Store:   store,
		Broker:  broker,
		TTS:     tts.NewSilence(3, 8000),
		Encoder: enc,
		Storage: local,
		Metrics: metrics.New(),
	}, Settings{
		Workers:        2,
		LeaseFor:       2 * time.Second,
		Heartbeat:      20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		BackoffBase:    10 * time.Millisecond,
		BackoffMax:     20 * time.Millisecond,
		TTSConcurrency: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return &harness{store: store, broker: broker, storage: local, enc: enc, pool: pool}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.pool.Stop)
}

func (h *harness) submit(t *testing.T, maxAttempts int) *jobs.Job {
	t.Helper()
	record := testsupport.SaveTimeline(t, h.store, "alice")
	return h.submitFor(t, record.ID, maxAttempts)
}

func (h *harness) submitFor(t *testing.T, timelineID string, maxAttempts int) *jobs.Job {
	t.Helper()
	job, err := h.store.Create(context.Background(), jobs.NewJob{
		OwnerID:       "alice",
		TimelineRef:   timelineID,
		OutputFormat:  encoder.FormatMP4,
		QualityPreset: encoder.QualityStandard,
		MaxAttempts:   maxAttempts,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.broker.Enqueue(context.Background(), renderqueue.Message{JobID: job.ID, EnqueuedAt: time.Now()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

func waitForStatus(t *testing.T, store *jobs.Store, id string, want jobs.Status) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.Get(context.Background(), id)
	t.Fatalf("job %s did not reach %s; last state %+v", id, want, job)
	return nil
}

func waitForIdleBroker(t *testing.T, broker renderqueue.Broker) renderqueue.Stats {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := broker.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Ready+stats.Delayed+stats.Leased == 0 || time.Now().After(deadline) {
			return stats
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPoolCompletesJob(t *testing.T) {
	h := newHarness(t, succeed)
	h.start(t)
	job := h.submit(t, 0)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)
	if done.Progress != 100 || done.OutputURL == "" || done.CompletedAt == nil {
		t.Fatalf("unexpected completed job: %+v", done)
	}
	data, err := os.ReadFile(filepath.Join(h.storage.Root(), "renders", job.ID+".mp4"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "VIDEO" {
		t.Fatalf("unexpected output %q", data)
	}
	stats := waitForIdleBroker(t, h.broker)
	if stats.Ready+stats.Delayed+stats.Leased+stats.DeadLetters != 0 {
		t.Fatalf("message should be acked, stats %+v", stats)
	}
	if h.pool.Status().Processed < 1 {
		t.Fatalf("expected processed count to advance")
	}
}

func TestPoolRetriesTransientFailure(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, call int, progress func(encoder.ProgressUpdate)) ([]byte, error) {
		if call == 1 {
			return nil, services.Wrap(services.ErrTransient, "encoder", "encode", "flaky", nil)
		}
		return succeed(ctx, call, progress)
	})
	h.start(t)
	job := h.submit(t, 3)

	done := waitForStatus(t, h.store, job.ID, jobs.StatusCompleted)
	if done.Attempts != 1 {
		t.Fatalf("expected one consumed attempt, got %d", done.Attempts)
	}
	if done.ErrorMessage != "" {
		t.Fatalf("retried jobs must not carry an error message: %q", done.ErrorMessage)
	}
	if h.enc.Calls() != 2 {
		t.Fatalf("expected 2 encode calls, got %d", h.enc.Calls())
	}
}

func TestPoolFailsAfterAttemptsExhausted(t *testing.T) {
	h := newHarness(t, func(context.Context, int, func(encoder.ProgressUpdate)) ([]byte, error) {
		return nil, &encoder.Error{ExitCode: 1, Stderr: "boom", Err: errors.New("exit status 1")}
	})
	h.start(t)
	job := h.submit(t, 2)

	failed := waitForStatus(t, h.store, job.ID, jobs.StatusFailed)
	if failed.Attempts != 2 || failed.ErrorMessage == "" {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
	stats := waitForIdleBroker(t, h.broker)
	if stats.DeadLetters != 1 {
		t.Fatalf("expected dead-lettered message, stats %+v", stats)
	}
}

func TestPoolFailsInvalidTimelineWithoutRetry(t *testing.T) {
	h := newHarness(t, succeed)
	tl := testsupport.Timeline(2, 3)
	tl.Scenes[1].StartTime = 2.5
	if _, err := h.store.SaveTimeline(context.Background(), "alice", "", tl); err != nil {
		t.Fatalf("SaveTimeline: %v", err)
	}
	h.start(t)
	job := h.submitFor(t, tl.ID, 3)

	failed := waitForStatus(t, h.store, job.ID, jobs.StatusFailed)
	if failed.Attempts != 0 {
		t.Fatalf("fatal errors must not consume attempts, got %d", failed.Attempts)
	}
	if h.enc.Calls() != 0 {
		t.Fatal("encoder must not run for an invalid timeline")
	}
}

func TestPoolCancelsDuringEncode(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ int, _ func(encoder.ProgressUpdate)) ([]byte, error) {
		<-ctx.Done()
		return nil, services.Wrap(services.ErrCancelled, "encoder", "encode", "", ctx.Err())
	})
	h.start(t)
	job := h.submit(t, 3)

	select {
	case <-h.enc.started:
	case <-time.After(10 * time.Second):
		t.Fatal("encoder never started")
	}
	if _, err := h.store.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stats := waitForIdleBroker(t, h.broker)
	if stats.DeadLetters != 0 || stats.Ready+stats.Delayed+stats.Leased != 0 {
		t.Fatalf("cancelled job message should be acked, stats %+v", stats)
	}
	final := waitForStatus(t, h.store, job.ID, jobs.StatusCancelled)
	if final.OutputURL != "" {
		t.Fatalf("cancelled job must not carry output: %+v", final)
	}
	if _, err := os.Stat(filepath.Join(h.storage.Root(), "renders", job.ID+".mp4")); !os.IsNotExist(err) {
		t.Fatalf("no artifact should be written, stat err=%v", err)
	}
}

func TestPoolSkipsJobCancelledWhileQueued(t *testing.T) {
	h := newHarness(t, succeed)
	job := h.submit(t, 3)
	if _, err := h.store.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	h.start(t)

	stats := waitForIdleBroker(t, h.broker)
	if stats.Ready+stats.Delayed+stats.Leased != 0 {
		t.Fatalf("message should be acked, stats %+v", stats)
	}
	if h.enc.Calls() != 0 {
		t.Fatal("encoder must not run for a cancelled job")
	}
	final, _ := h.store.Get(context.Background(), job.ID)
	if final.Status != jobs.StatusCancelled {
		t.Fatalf("status changed: %s", final.Status)
	}
}

func TestPoolDropsMessageForUnknownJob(t *testing.T) {
	h := newHarness(t, succeed)
	if err := h.broker.Enqueue(context.Background(), renderqueue.Message{JobID: "ghost", EnqueuedAt: time.Now()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.start(t)
	stats := waitForIdleBroker(t, h.broker)
	if stats.Ready+stats.Delayed+stats.Leased+stats.DeadLetters != 0 {
		t.Fatalf("orphan message should be acked, stats %+v", stats)
	}
}

func TestNewPoolRequiresDependencies(t *testing.T) {
	if _, err := NewPool(Dependencies{}, Settings{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{LeaseFor: 30 * time.Second, Heartbeat: time.Minute}.withDefaults()
	if s.Workers != 1 || s.Heartbeat != 10*time.Second || s.TTSConcurrency != 1 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.BackoffMax < s.BackoffBase {
		t.Fatalf("backoff max below base: %+v", s)
	}
}

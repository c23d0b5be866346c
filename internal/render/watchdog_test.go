package render

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"slidecast/internal/jobs"
	"slidecast/internal/renderqueue"
	"slidecast/internal/testsupport"
)

func newWatchdogFixture(t *testing.T) (*Watchdog, *jobs.Store, renderqueue.Broker) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	broker, err := renderqueue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	return NewWatchdog(cfg, store, broker, nil, nil), store, broker
}

func TestWatchdogReclaimsExpiredLease(t *testing.T) {
	wd, store, broker := newWatchdogFixture(t)
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "alice")
	if _, err := store.Start(ctx, job.ID, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Requeued != 1 || result.Reenqueued != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	reclaimed, _ := store.Get(ctx, job.ID)
	if reclaimed.Status != jobs.StatusQueued || reclaimed.Attempts != 1 {
		t.Fatalf("unexpected reclaimed job %+v", reclaimed)
	}
	has, err := broker.Has(ctx, job.ID)
	if err != nil || !has {
		t.Fatalf("expected broker message to be restored, has=%v err=%v", has, err)
	}

	again, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if again != (SweepResult{}) {
		t.Fatalf("second sweep should be a no-op, got %+v", again)
	}
}

func TestWatchdogKeepsExistingMessage(t *testing.T) {
	wd, store, broker := newWatchdogFixture(t)
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "alice")
	if err := broker.Enqueue(ctx, renderqueue.Message{JobID: job.ID, EnqueuedAt: time.Now()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Start(ctx, job.ID, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Requeued != 1 || result.Reenqueued != 0 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
}

func TestWatchdogFailsExhaustedLease(t *testing.T) {
	wd, store, _ := newWatchdogFixture(t)
	ctx := context.Background()
	record := testsupport.SaveTimeline(t, store, "alice")
	job, err := store.Create(ctx, jobs.NewJob{OwnerID: "alice", TimelineRef: record.ID, OutputFormat: "mp4", QualityPreset: "draft", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Start(ctx, job.ID, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	failed, _ := store.Get(ctx, job.ID)
	if failed.Status != jobs.StatusFailed || failed.ErrorMessage == "" {
		t.Fatalf("unexpected job %+v", failed)
	}
}

func TestWatchdogLeavesLiveLeases(t *testing.T) {
	wd, store, _ := newWatchdogFixture(t)
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "alice")
	if _, err := store.Start(ctx, job.ID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result != (SweepResult{}) {
		t.Fatalf("live lease should be untouched, got %+v", result)
	}
}

func TestWatchdogFailsOrphanedQueuedJobs(t *testing.T) {
	wd, store, broker := newWatchdogFixture(t)
	ctx := context.Background()
	orphan := testsupport.NewJob(t, store, "alice")
	waiting := testsupport.NewJob(t, store, "bob")
	if err := broker.Enqueue(ctx, renderqueue.Message{JobID: waiting.ID, EnqueuedAt: time.Now()}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	wd.now = func() time.Time { return time.Now().Add(time.Hour) }

	result, err := wd.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Orphaned != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	failed, _ := store.Get(ctx, orphan.ID)
	if failed.Status != jobs.StatusFailed || failed.ErrorMessage != jobs.QueueUnavailableMessage {
		t.Fatalf("unexpected orphan %+v", failed)
	}
	still, _ := store.Get(ctx, waiting.ID)
	if still.Status != jobs.StatusQueued {
		t.Fatalf("job with a message must stay queued, got %s", still.Status)
	}
}

func TestRetentionPurgesOldTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewJob(t, store, "alice")
	if _, err := store.Cancel(ctx, done.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	active := testsupport.NewJob(t, store, "bob")

	r := NewRetention(cfg, store, nil)
	if r == nil {
		t.Fatal("retention should be enabled by default")
	}
	r.now = func() time.Time { return time.Now().Add(time.Duration(cfg.Render.RetentionDays+1) * 24 * time.Hour) }

	jobsRemoved, timelinesRemoved, err := r.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if jobsRemoved != 1 || timelinesRemoved != 1 {
		t.Fatalf("removed jobs=%d timelines=%d, want 1/1", jobsRemoved, timelinesRemoved)
	}
	if _, err := store.Get(ctx, active.ID); err != nil {
		t.Fatalf("non-terminal job must survive: %v", err)
	}
}

func TestRetentionSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cfg.Render.RetentionSchedule = "@every 1h"
	r := NewRetention(cfg, store, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()

	cfg.Render.RetentionDays = 0
	if NewRetention(cfg, store, nil) != nil {
		t.Fatal("retention_days=0 disables cleanup")
	}
	var disabled *Retention
	if err := disabled.Start(context.Background()); err != nil {
		t.Fatalf("nil retention Start: %v", err)
	}
	disabled.Stop()
}

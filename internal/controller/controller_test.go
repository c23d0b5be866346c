package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/metrics"
	"slidecast/internal/pptx"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services"
	"slidecast/internal/services/storage"
	"slidecast/internal/testsupport"
)

type failingBroker struct {
	renderqueue.Broker
}

func (failingBroker) Enqueue(context.Context, renderqueue.Message) error {
	return &renderqueue.QueueError{Op: "enqueue", Err: errors.New("connection refused")}
}

type fixture struct {
	cfg     *config.Config
	store   *jobs.Store
	broker  renderqueue.Broker
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(4))
	store := testsupport.MustOpenStore(t, cfg)
	broker, err := renderqueue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	return &fixture{
		cfg:     cfg,
		store:   store,
		broker:  broker,
		service: NewService(cfg, store, broker, nil, metrics.New(), nil),
	}
}

func (f *fixture) request(t *testing.T) SubmitRequest {
	t.Helper()
	record := testsupport.SaveTimeline(t, f.store, "alice")
	return SubmitRequest{OwnerID: "alice", TimelineRef: record.ID, OutputFormat: "mp4", QualityPreset: "standard"}
}

func TestSubmitQueuesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Submit(ctx, f.request(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID == "" || resp.Status != jobs.StatusQueued {
		t.Fatalf("unexpected response %+v", resp)
	}
	view, err := f.service.Status(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.MaxAttempts != 4 || view.Progress != 0 || view.OwnerID != "alice" {
		t.Fatalf("unexpected view %+v", view)
	}
	has, err := f.broker.Has(ctx, resp.JobID)
	if err != nil || !has {
		t.Fatalf("expected broker message, has=%v err=%v", has, err)
	}
}

func TestSubmitNormalizesCase(t *testing.T) {
	f := newFixture(t)
	req := f.request(t)
	req.OutputFormat = " WebM "
	req.QualityPreset = "HIGH"

	resp, err := f.service.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view, _ := f.service.Status(context.Background(), resp.JobID)
	if view.OutputFormat != "webm" || view.QualityPreset != "high" {
		t.Fatalf("unexpected normalized view %+v", view)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	valid := f.request(t)

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
		field  string
	}{
		{"missing owner", func(r *SubmitRequest) { r.OwnerID = "" }, "ownerId"},
		{"bad timeline ref", func(r *SubmitRequest) { r.TimelineRef = "not-a-uuid" }, "timelineRef"},
		{"unknown timeline", func(r *SubmitRequest) { r.TimelineRef = uuid.NewString() }, "timelineRef"},
		{"bad format", func(r *SubmitRequest) { r.OutputFormat = "gif" }, "outputFormat"},
		{"bad preset", func(r *SubmitRequest) { r.QualityPreset = "ultra" }, "qualityPreset"},
		{"priority out of range", func(r *SubmitRequest) { r.Priority = 12 }, "priority"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := f.service.Submit(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected services.ErrValidation marker")
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, verr.Fields)
			}
		})
	}

	list, err := f.service.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected submissions must not create jobs, got %d", len(list))
	}
}

func TestSubmitThenCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.Submit(ctx, f.request(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view, err := f.service.Cancel(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if view.Status != jobs.StatusCancelled || view.OutputURL != "" || view.CompletedAt == nil {
		t.Fatalf("unexpected cancelled view %+v", view)
	}
	status, _ := f.service.Status(ctx, resp.JobID)
	if status.Status != jobs.StatusCancelled || status.OutputURL != "" {
		t.Fatalf("status after cancel: %+v", status)
	}

	if _, err := f.service.Cancel(ctx, resp.JobID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
	if _, err := f.service.Cancel(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitFailsJobWhenQueueUnavailable(t *testing.T) {
	f := newFixture(t)
	service := NewService(f.cfg, f.store, failingBroker{Broker: f.broker}, nil, nil, nil)

	_, err := service.Submit(context.Background(), f.request(t))
	if !errors.Is(err, services.ErrQueueUnavailable) {
		t.Fatalf("expected queue unavailable, got %v", err)
	}
	list, err := service.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one recorded job, got %d", len(list))
	}
	if list[0].Status != jobs.StatusFailed || list[0].ErrorMessage != jobs.QueueUnavailableMessage {
		t.Fatalf("unexpected job after enqueue failure: %+v", list[0])
	}
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Status(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.service.Timeline(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for timeline, got %v", err)
	}
}

func TestListFiltersByOwnerAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Submit(ctx, f.request(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.service.Submit(ctx, f.request(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	bob := f.request(t)
	bob.OwnerID = "bob"
	if _, err := f.service.Submit(ctx, bob); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.service.Cancel(ctx, first.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	all, _ := f.service.List(ctx, "")
	alice, _ := f.service.List(ctx, "alice")
	queued, _ := f.service.List(ctx, "alice", jobs.StatusQueued)
	cancelled, _ := f.service.List(ctx, "alice", jobs.StatusCancelled)
	if len(all) != 3 || len(alice) != 2 || len(queued) != 1 || len(cancelled) != 1 {
		t.Fatalf("unexpected counts all=%d alice=%d queued=%d cancelled=%d", len(all), len(alice), len(queued), len(cancelled))
	}
	if cancelled[0].ID != first.JobID {
		t.Fatalf("expected cancelled job %s, got %s", first.JobID, cancelled[0].ID)
	}
}

func TestRetryResubmitsFailedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(t)
	req.Priority = 5
	resp, err := f.service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.service.Retry(ctx, resp.JobID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict retrying a queued job, got %v", err)
	}
	if _, err := f.store.Fail(ctx, resp.JobID, "encoder exploded"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	retried, err := f.service.Retry(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.JobID == resp.JobID || retried.Status != jobs.StatusQueued {
		t.Fatalf("expected a new queued job, got %+v", retried)
	}
	view, _ := f.service.Status(ctx, retried.JobID)
	if view.TimelineRef != req.TimelineRef || view.Priority != 5 || view.Attempts != 0 {
		t.Fatalf("retried job does not mirror the original: %+v", view)
	}
	old, _ := f.service.Status(ctx, resp.JobID)
	if old.Status != jobs.StatusFailed {
		t.Fatalf("original job should stay failed, got %s", old.Status)
	}
}

func newIngestor(t *testing.T, f *fixture) (*Ingestor, *storage.Local) {
	t.Helper()
	local, err := storage.NewLocal(f.cfg.Storage.LocalDir, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return NewIngestor(f.cfg, nil, f.store, local, metrics.New(), nil), local
}

func TestIngestStoresTimeline(t *testing.T) {
	f := newFixture(t)
	ingestor, local := newIngestor(t, f)
	ctx := context.Background()

	result, err := ingestor.Ingest(ctx, IngestRequest{
		OwnerID:  "alice",
		FileName: "quarterly.pptx",
		Data:     testsupport.SimpleDeck(t, "Intro", "Numbers", "Outro"),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Success || result.Error != nil || result.TimelineID == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Stats.SlideCount != 3 || result.Stats.EstimatedDurationSeconds != 15 {
		t.Fatalf("unexpected stats %+v", result.Stats)
	}
	for _, thumb := range result.Document.Thumbnails {
		if thumb.URL == "" {
			t.Fatalf("thumbnail %d has no url", thumb.SlideIndex)
		}
	}

	record, err := f.service.Timeline(ctx, result.TimelineID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if record.OwnerID != "alice" || record.SourceURL != result.SourceURL || len(record.Timeline.Scenes) != 3 {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.Timeline.TotalDuration != 15 {
		t.Fatalf("expected total duration 15, got %v", record.Timeline.TotalDuration)
	}
	upload := filepath.Join(local.Root(), "uploads", result.TimelineID, "quarterly.pptx")
	if _, err := os.Stat(upload); err != nil {
		t.Fatalf("expected stored upload: %v", err)
	}

	resp, err := f.service.Submit(ctx, SubmitRequest{
		OwnerID:       "alice",
		TimelineRef:   result.TimelineID,
		OutputFormat:  "mp4",
		QualityPreset: "draft",
	})
	if err != nil || resp.Status != jobs.StatusQueued {
		t.Fatalf("submit ingested timeline: %+v %v", resp, err)
	}
}

func TestIngestRejectionsAreStructured(t *testing.T) {
	f := newFixture(t)
	ingestor, _ := newIngestor(t, f)

	tests := []struct {
		name string
		data []byte
		kind string
		code string
	}{
		{"empty", nil, "validation", string(pptx.CodeEmptyFile)},
		{"not a zip", []byte("plain text, definitely not a deck"), "validation", string(pptx.CodeBadSignature)},
		{"zip without slides", testsupport.BuildDeck(t, testsupport.DeckSpec{}), "parse", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ingestor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", Data: tc.data})
			if err != nil {
				t.Fatalf("rejections must not be returned as errors: %v", err)
			}
			if result.Success || result.Error == nil || result.Document != nil || result.TimelineID != "" {
				t.Fatalf("unexpected result %+v", result)
			}
			if result.Error.Kind != tc.kind || result.Error.Code != tc.code {
				t.Fatalf("unexpected error %+v", result.Error)
			}
		})
	}
}

func TestIngestRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ingestor, _ := newIngestor(t, f)
	_, err := ingestor.Ingest(context.Background(), IngestRequest{Data: testsupport.SimpleDeck(t, "Solo")})
	var verr *ValidationError
	if !errors.As(err, &verr) || !strings.Contains(err.Error(), "owner") {
		t.Fatalf("expected owner validation error, got %v", err)
	}
}

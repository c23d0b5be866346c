package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/controller"
	"slidecast/internal/jobs"
	"slidecast/internal/metrics"
	"slidecast/internal/pptx"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services/storage"
	"slidecast/internal/testsupport"
)

type apiFixture struct {
	server   *httptest.Server
	store    *jobs.Store
	localDir string
}

func newAPIFixture(t *testing.T, maxUpload int64) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	broker, err := renderqueue.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { broker.Close() })
	local, err := storage.NewLocal(cfg.Storage.LocalDir, "http://cdn.test/")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	m := metrics.New()
	srv := NewServer(Options{
		Controller: controller.NewService(cfg, store, broker, nil, m, nil),
		Ingestor:   controller.NewIngestor(cfg, nil, store, local, m, nil),
		Status: func(context.Context) StatusResponse {
			return StatusResponse{Running: true, PID: 42}
		},
		Metrics:        m,
		MaxUploadBytes: maxUpload,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &apiFixture{server: ts, store: store, localDir: cfg.Storage.LocalDir}
}

func (f *apiFixture) do(t *testing.T, method, path, contentType string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func (f *apiFixture) ingest(t *testing.T, titles ...string) controller.Result {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/ingest?name=talk.pptx", "application/octet-stream",
		bytes.NewReader(testsupport.SimpleDeck(t, titles...)), map[string]string{OwnerHeader: "alice"})
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("ingest status %d: %s", resp.StatusCode, body)
	}
	return decode[controller.Result](t, resp)
}

func TestIngestRawBodyAndFetchTimeline(t *testing.T) {
	f := newAPIFixture(t, 0)
	result := f.ingest(t, "One", "Two", "Three")
	if !result.Success || result.TimelineID == "" || result.Stats.SlideCount != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.HasPrefix(result.SourceURL, "http://cdn.test/uploads/") {
		t.Fatalf("unexpected source url %q", result.SourceURL)
	}

	resp := f.do(t, http.MethodGet, "/api/timelines/"+result.TimelineID, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d", resp.StatusCode)
	}
	tl := decode[TimelineResponse](t, resp)
	if tl.OwnerID != "alice" || len(tl.Timeline.Scenes) != 3 || tl.Timeline.TotalDuration != 15 {
		t.Fatalf("unexpected timeline %+v", tl)
	}

	yamlResp := f.do(t, http.MethodGet, "/api/timelines/"+result.TimelineID+"?format=yaml", "", nil, nil)
	body, _ := io.ReadAll(yamlResp.Body)
	if yamlResp.Header.Get("Content-Type") != "application/yaml" || !strings.Contains(string(body), "scenes:") {
		t.Fatalf("unexpected yaml response %q", body)
	}
}

func TestIngestMultipart(t *testing.T) {
	f := newAPIFixture(t, 0)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	part, err := mw.CreateFormFile("file", "quarterly.pptx")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write(testsupport.SimpleDeck(t, "Only"))
	_ = mw.Close()

	resp := f.do(t, http.MethodPost, "/api/ingest?owner=bob&duration=8", mw.FormDataContentType(), &buf, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	result := decode[controller.Result](t, resp)
	if result.Document == nil || result.Document.FileName != "quarterly.pptx" {
		t.Fatalf("unexpected document %+v", result.Document)
	}
	if result.Document.TotalDurationSeconds != 8 {
		t.Fatalf("duration override not applied: %v", result.Document.TotalDurationSeconds)
	}
}

func TestIngestRejections(t *testing.T) {
	f := newAPIFixture(t, 1024)
	oversized := append([]byte("PK\x03\x04"), make([]byte, 2048)...)

	tests := []struct {
		name string
		body []byte
		code pptx.ValidationCode
	}{
		{"empty", nil, pptx.CodeEmptyFile},
		{"too large", oversized, pptx.CodeTooLarge},
		{"not a zip", []byte("hello"), pptx.CodeBadSignature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/ingest", "application/octet-stream",
				bytes.NewReader(tc.body), map[string]string{OwnerHeader: "alice"})
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", resp.StatusCode)
			}
			result := decode[controller.Result](t, resp)
			if result.Success || result.Error == nil || result.Error.Code != string(tc.code) {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestIngestBadRequests(t *testing.T) {
	f := newAPIFixture(t, 0)
	deck := testsupport.SimpleDeck(t, "A")

	resp := f.do(t, http.MethodPost, "/api/ingest", "application/octet-stream", bytes.NewReader(deck), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing owner: expected 400, got %d", resp.StatusCode)
	}

	cases := []struct {
		query string
		field string
	}{
		{"duration=soon", "duration"},
		{"duration=NaN", "duration"},
		{"duration=Inf", "duration"},
		{"minDuration=-Inf", "minDuration"},
		{"transitionDuration=nan", "transitionDuration"},
	}
	for _, tc := range cases {
		resp := f.do(t, http.MethodPost, "/api/ingest?owner=a&"+tc.query, "application/octet-stream", bytes.NewReader(deck), nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.query, resp.StatusCode)
		}
		body := decode[ErrorResponse](t, resp)
		if body.Kind != "validation" || len(body.Fields) != 1 || body.Fields[0].Field != tc.field {
			t.Fatalf("%s: unexpected error body %+v", tc.query, body)
		}
	}

	var stored []string
	err := filepath.WalkDir(f.localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			stored = append(stored, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("walk storage: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("rejected uploads left objects behind: %v", stored)
	}
}

func TestRenderLifecycle(t *testing.T) {
	f := newAPIFixture(t, 0)
	result := f.ingest(t, "Intro", "Body")

	payload := `{"ownerId":"alice","timelineRef":"` + result.TimelineID + `","outputFormat":"mp4","qualityPreset":"standard"}`
	resp := f.do(t, http.MethodPost, "/api/render", "application/json", strings.NewReader(payload), nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	submitted := decode[controller.SubmitResponse](t, resp)
	if submitted.Status != jobs.StatusQueued || resp.Header.Get("Location") != "/api/render/"+submitted.JobID {
		t.Fatalf("unexpected submit response %+v location=%q", submitted, resp.Header.Get("Location"))
	}

	resp = f.do(t, http.MethodGet, "/api/render/"+submitted.JobID, "", nil, nil)
	view := decode[controller.JobView](t, resp)
	if resp.StatusCode != http.StatusOK || view.Status != jobs.StatusQueued {
		t.Fatalf("unexpected status %d %+v", resp.StatusCode, view)
	}

	resp = f.do(t, http.MethodPost, "/api/render/"+submitted.JobID+"/cancel", "", nil, nil)
	view = decode[controller.JobView](t, resp)
	if resp.StatusCode != http.StatusOK || view.Status != jobs.StatusCancelled || view.OutputURL != "" {
		t.Fatalf("unexpected cancel %d %+v", resp.StatusCode, view)
	}

	resp = f.do(t, http.MethodPost, "/api/render/"+submitted.JobID+"/cancel", "", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second cancel, got %d", resp.StatusCode)
	}
	if body := decode[ErrorResponse](t, resp); body.Kind != "conflict" {
		t.Fatalf("unexpected conflict body %+v", body)
	}

	resp = f.do(t, http.MethodPost, "/api/render/"+submitted.JobID+"/retry", "", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 retrying a cancelled job, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/render?owner=alice&status=cancelled,failed", "", nil, nil)
	list := decode[JobListResponse](t, resp)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != submitted.JobID {
		t.Fatalf("unexpected list %+v", list)
	}
	resp = f.do(t, http.MethodGet, "/api/render?owner=alice&status=queued", "", nil, nil)
	if list := decode[JobListResponse](t, resp); list.Jobs == nil || len(list.Jobs) != 0 {
		t.Fatalf("expected an empty, non-null list, got %+v", list)
	}
}

func TestRenderErrors(t *testing.T) {
	f := newAPIFixture(t, 0)

	resp := f.do(t, http.MethodPost, "/api/render", "application/json",
		strings.NewReader(`{"ownerId":"alice","timelineRef":"nope","outputFormat":"gif","qualityPreset":"standard"}`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[ErrorResponse](t, resp)
	if len(body.Fields) != 2 {
		t.Fatalf("expected two field errors, got %+v", body.Fields)
	}

	resp = f.do(t, http.MethodPost, "/api/render", "application/json", strings.NewReader(`{not json`), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/render/5b0c1c2e-0000-4000-8000-000000000000", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decode[ErrorResponse](t, resp); body.Kind != "not_found" || body.RequestID == "" {
		t.Fatalf("unexpected 404 body %+v", body)
	}

	resp = f.do(t, http.MethodGet, "/api/render?status=exploded", "", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/timelines/5b0c1c2e-0000-4000-8000-000000000000", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown timeline, got %d", resp.StatusCode)
	}
}

func TestStatusMetricsAndRequestID(t *testing.T) {
	f := newAPIFixture(t, 0)

	resp := f.do(t, http.MethodGet, "/api/status", "", nil, map[string]string{RequestIDHeader: "trace-123"})
	if resp.Header.Get(RequestIDHeader) != "trace-123" {
		t.Fatalf("request id not echoed: %q", resp.Header.Get(RequestIDHeader))
	}
	status := decode[StatusResponse](t, resp)
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status %+v", status)
	}

	resp = f.do(t, http.MethodGet, "/api/status", "", nil, nil)
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	resp = f.do(t, http.MethodGet, "/metrics", "", nil, nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `slidecast_http_requests_total{method="GET",route="/api/status",status="200"}`) {
		t.Fatalf("expected route-labelled request counter in metrics output:\n%s", body)
	}
}

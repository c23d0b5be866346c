package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	root := t.TempDir()
	plainFile := filepath.Join(root, "deck.pptx")
	if err := os.WriteFile(plainFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := map[string]struct {
		path string
		pass bool
	}{
		"writable dir": {root, true},
		"missing":      {filepath.Join(root, "nope"), false},
		"regular file": {plainFile, false},
	}
	for name, tc := range cases {
		result := CheckDirectoryAccess("artifacts", tc.path)
		if result.Passed != tc.pass {
			t.Fatalf("%s: passed=%v want %v (%s)", name, result.Passed, tc.pass, result.Detail)
		}
		if !tc.pass && result.Detail == "" {
			t.Fatalf("%s: expected failure detail", name)
		}
	}
}

func TestCheckSpeechEndpoint_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	result := CheckSpeechEndpoint(context.Background(), srv.URL, "good-key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckSpeechEndpoint_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := CheckSpeechEndpoint(context.Background(), srv.URL, "bad-key")
	if result.Passed || !strings.Contains(result.Detail, "auth failed") {
		t.Fatalf("expected auth failure, got %+v", result)
	}
}

func TestCheckSpeechEndpoint_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if result := CheckSpeechEndpoint(context.Background(), srv.URL, ""); result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckSpeechEndpoint_MissingURL(t *testing.T) {
	if result := CheckSpeechEndpoint(context.Background(), " ", "key"); result.Passed {
		t.Fatal("expected failure for missing endpoint")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DefaultBackends(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunAll(context.Background(), cfg)
	// data, log, scratch, artifact directories + encoder + queue
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("Failed should be false when every check passes")
	}
}

func TestRunAll_IncludesSpeechEndpointWhenSelected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.TTS.Backend = config.TTSHTTP
	cfg.TTS.Endpoint = srv.URL
	t.Setenv("PATH", "")

	results := RunAll(context.Background(), cfg)
	var speech, encoder *Result
	for i := range results {
		switch results[i].Name {
		case "Speech endpoint":
			speech = &results[i]
		case "FFmpeg":
			encoder = &results[i]
		}
	}
	if speech == nil || !speech.Passed {
		t.Fatalf("expected passing speech check, got %+v", speech)
	}
	if encoder == nil || encoder.Passed {
		t.Fatalf("expected failing encoder check with empty PATH, got %+v", encoder)
	}
	if !Failed(results) {
		t.Fatal("Failed should report the missing encoder")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slidecast/internal/config"
	"slidecast/internal/controller"
	"slidecast/internal/daemon"
	"slidecast/internal/testsupport"
	"slidecast/internal/timeline"
)

type cliEnv struct {
	cfg        *config.Config
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "slidecast.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{cfg: cfg, configPath: path}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliEnv) writeDeck(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(e.cfg), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	return path
}

func (e *cliEnv) startDaemon(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	d, err := daemon.New(ctx, e.cfg, daemon.Components{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	return d.Address()
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "slidecast.toml")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[render]") || !strings.Contains(out, "api_bind") {
		t.Fatalf("unexpected config output:\n%s", out)
	}
}

func TestIngestLocalJSON(t *testing.T) {
	env := newCLIEnv(t)
	deck := env.writeDeck(t, "talk.pptx", testsupport.SimpleDeck(t, "Opening", "Middle", "Close"))

	out, err := env.run(t, "ingest", deck, "-o", "json", "--duration", "4", "-q")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(out), &tl); err != nil {
		t.Fatalf("decode timeline: %v\n%s", err, out)
	}
	if len(tl.Scenes) != 3 || tl.TotalDuration != 12 {
		t.Fatalf("unexpected timeline %+v", tl)
	}
}

func TestIngestLocalSummaryAndYAML(t *testing.T) {
	env := newCLIEnv(t)
	deck := env.writeDeck(t, "talk.pptx", testsupport.SimpleDeck(t, "Roadmap"))

	out, err := env.run(t, "ingest", deck, "-o", "summary", "-q")
	if err != nil {
		t.Fatalf("ingest summary: %v", err)
	}
	if !strings.Contains(out, "talk.pptx: 1 slides") || !strings.Contains(out, "Roadmap") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	out, err = env.run(t, "ingest", deck, "-q")
	if err != nil {
		t.Fatalf("ingest yaml: %v", err)
	}
	if !strings.Contains(out, "scenes:") {
		t.Fatalf("expected yaml timeline, got:\n%s", out)
	}
}

func TestIngestLocalRejectsEmptyDeck(t *testing.T) {
	env := newCLIEnv(t)
	deck := env.writeDeck(t, "empty.pptx", nil)
	_, err := env.run(t, "ingest", deck, "-q")
	if err == nil || !strings.Contains(err.Error(), "EmptyFile") {
		t.Fatalf("expected EmptyFile rejection, got %v", err)
	}
}

func TestRenderCommandsAgainstDaemon(t *testing.T) {
	env := newCLIEnv(t)
	addr := env.startDaemon(t)
	deck := env.writeDeck(t, "talk.pptx", testsupport.SimpleDeck(t, "Hello", "World"))

	out, err := env.run(t, "--api", addr, "ingest", deck, "--remote", "--owner", "erin", "-o", "json")
	if err != nil {
		t.Fatalf("remote ingest: %v", err)
	}
	var result controller.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil || !result.Success {
		t.Fatalf("unexpected ingest output %q err=%v", out, err)
	}

	out, err = env.run(t, "--api", addr, "submit", result.TimelineID, "--owner", "erin", "--json")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted controller.SubmitResponse
	if err := json.Unmarshal([]byte(out), &submitted); err != nil || submitted.JobID == "" {
		t.Fatalf("unexpected submit output %q err=%v", out, err)
	}

	out, err = env.run(t, "--api", addr, "jobs", "--owner", "erin")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, submitted.JobID) || !strings.Contains(out, "mp4/standard") {
		t.Fatalf("job missing from listing:\n%s", out)
	}

	out, err = env.run(t, "--api", addr, "job", submitted.JobID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if !strings.Contains(out, "Owner:     erin") {
		t.Fatalf("unexpected job output:\n%s", out)
	}

	out, err = env.run(t, "--api", addr, "timeline", result.TimelineID)
	if err != nil || !strings.Contains(out, "scenes:") {
		t.Fatalf("timeline: %v\n%s", err, out)
	}

	out, err = env.run(t, "--api", addr, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "== Daemon ==") || !strings.Contains(out, "== Queue ==") || strings.Contains(out, "not running") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	if _, err := env.run(t, "--api", addr, "job", "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
	if _, err := env.run(t, "--api", addr, "jobs", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusOffline(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "--api", "127.0.0.1:1", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "not running") || !strings.Contains(out, "No render jobs") {
		t.Fatalf("unexpected offline status:\n%s", out)
	}
}

func TestPreflightCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[OK]") || strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected preflight output:\n%s", out)
	}
}

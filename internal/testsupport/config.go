package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"slidecast/internal/config"
)

// ConfigOption adjusts the config built by NewConfig before its directories
// are created.
type ConfigOption func(*fixture)

type fixture struct {
	t    testing.TB
	root string
	cfg  *config.Config
}

// NewConfig returns a default config rooted in a fresh temp directory, bound
// to an ephemeral API port, with one-second poll and retry intervals.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	f := &fixture{t: t, root: t.TempDir(), cfg: &cfg}
	cfg.Paths.DataDir = f.path("data")
	cfg.Paths.LogDir = f.path("logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Storage.LocalDir = f.path("artifacts")
	cfg.Encoder.ScratchDir = f.path("scratch")
	cfg.Render.PollInterval = 1
	cfg.Render.RetryBackoffSeconds = 1

	for _, opt := range opts {
		opt(f)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.root, name)
}

// WithMaxAttempts overrides the render retry budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(f *fixture) { f.cfg.Render.MaxAttempts = n }
}

// WithWorkerCount overrides the render pool size.
func WithWorkerCount(n int) ConfigOption {
	return func(f *fixture) { f.cfg.Render.WorkerCount = n }
}

// WithStubbedBinaries puts no-op executables named names (default: the
// configured encoder binary) first on PATH for the duration of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(f *fixture) {
		if len(names) == 0 {
			names = []string{f.cfg.Encoder.Binary}
		}
		bin := f.path("bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			f.t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				f.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		f.t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

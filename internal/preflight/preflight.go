package preflight

import (
	"context"

	"slidecast/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes the checks that apply to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Encoder scratch directory", cfg.Encoder.ScratchDir),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Artifact directory", cfg.Storage.LocalDir))
	}
	results = append(results, CheckEncoder(ctx, cfg))
	results = append(results, CheckQueue(ctx, cfg))
	if cfg.Storage.Backend == config.StorageGCS {
		results = append(results, CheckStorage(ctx, cfg))
	}
	if cfg.TTS.Backend == config.TTSHTTP {
		results = append(results, CheckSpeechEndpoint(ctx, cfg.TTS.Endpoint, cfg.TTS.APIKey))
	}
	return results
}

// Failed reports whether any check in results did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

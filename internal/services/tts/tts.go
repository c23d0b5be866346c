package tts

import (
	"context"
	"fmt"
	"log/slog"

	"slidecast/internal/config"
	"slidecast/internal/services"
	"slidecast/internal/textutil"
)

// Audio is one synthesized narration clip.
type Audio struct {
	Bytes           []byte
	DurationSeconds float64
	Format          string
}

// Synthesizer turns narration text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}

// New builds the synthesizer selected by configuration.
func New(cfg *config.Config, logger *slog.Logger) (Synthesizer, error) {
	switch cfg.TTS.Backend {
	case config.TTSSilence, "":
		return NewSilence(cfg.TTS.WordsPerSecond, cfg.TTS.SampleRate), nil
	case config.TTSHTTP:
		return NewHTTP(HTTPConfig{
			Endpoint:          cfg.TTS.Endpoint,
			APIKey:            cfg.TTS.APIKey,
			TimeoutSeconds:    cfg.TTS.TimeoutSeconds,
			RequestsPerSecond: cfg.TTS.RequestsPerSecond,
		}, WithLogger(logger))
	default:
		return nil, services.Wrap(services.ErrConfiguration, "tts", "open", fmt.Sprintf("unknown backend %q", cfg.TTS.Backend), nil)
	}
}

// EstimateSeconds approximates spoken length from a word count.
func EstimateSeconds(text string, wordsPerSecond float64) float64 {
	words := textutil.WordCount(text)
	if words == 0 || wordsPerSecond <= 0 {
		return 0
	}
	return float64(words) / wordsPerSecond
}

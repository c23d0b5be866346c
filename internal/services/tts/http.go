package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"slidecast/internal/logging"
	"slidecast/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
	maxResponseBytes      = 64 << 20
)

// HTTPConfig captures the speech endpoint settings.
type HTTPConfig struct {
	Endpoint          string
	APIKey            string
	TimeoutSeconds    int
	RequestsPerSecond float64
}

// HTTP calls a JSON speech endpoint. The request body is
// {"text","voice"}; the response carries base64 audio.
type HTTP struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// HTTPOption customizes the client.
type HTTPOption func(*HTTP)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.httpClient = client
		}
	}
}

// WithRetry overrides attempt count and backoff bounds.
func WithRetry(attempts int, base, maxDelay time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.retryAttempts = attempts
		h.retryBaseDelay = base
		h.retryMaxDelay = maxDelay
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		if logger != nil {
			h.logger = logging.NewComponentLogger(logger, "tts")
		}
	}
}

// NewHTTP validates the endpoint and constructs the client.
func NewHTTP(cfg HTTPConfig, opts ...HTTPOption) (*HTTP, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "http", "endpoint is required", nil)
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	h := &HTTP{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logging.NewNop(),
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(int(cfg.RequestsPerSecond), 1)
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type speechResponse struct {
	AudioContent    string  `json:"audioContent"`
	DurationSeconds float64 `json:"durationSeconds"`
	Format          string  `json:"format"`
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tts request: http %d: %s", e.StatusCode, e.Body)
}

// Synthesize returns zero-length audio for empty text without calling the
// endpoint.
func (h *HTTP) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, nil
	}
	attempts := max(h.retryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		audio, err := h.once(ctx, speechRequest{Text: text, Voice: voiceID})
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if !retryable(ctx, err) || attempt == attempts {
			break
		}
		delay := h.backoffDelay(attempt)
		h.logger.Debug("retrying speech request",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Audio{}, services.Wrap(services.ErrCancelled, "tts", "synthesize", "", ctx.Err())
		case <-timer.C:
		}
	}
	return Audio{}, classify(ctx, lastErr)
}

func (h *HTTP) once(ctx context.Context, payload speechRequest) (Audio, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return Audio{}, fmt.Errorf("tts request: rate limit: %w", err)
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return Audio{}, &statusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	var decoded speechResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Audio{}, fmt.Errorf("tts request: decode response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return Audio{}, fmt.Errorf("tts request: decode audio: %w", err)
	}
	format := strings.TrimSpace(decoded.Format)
	if format == "" {
		format = "wav"
	}
	return Audio{Bytes: data, DurationSeconds: decoded.DurationSeconds, Format: format}, nil
}

func (h *HTTP) backoffDelay(attempt int) time.Duration {
	delay := h.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > h.retryMaxDelay/2 {
			return h.retryMaxDelay
		}
		delay *= 2
	}
	return min(delay, h.retryMaxDelay)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "tts", "synthesize", "", ctx.Err())
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "speech endpoint rejected credentials", err)
		case se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnprocessableEntity:
			return services.Wrap(services.ErrFatal, "tts", "synthesize", "speech endpoint rejected narration", err)
		}
	}
	return services.Wrap(services.ErrTransient, "tts", "synthesize", "speech request failed", err)
}

var _ Synthesizer = (*HTTP)(nil)

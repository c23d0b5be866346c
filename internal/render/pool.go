package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services/encoder"
	"slidecast/internal/services/storage"
	"slidecast/internal/services/tts"
)

// Dependencies are the collaborators a Pool drives.
type Dependencies struct {
	Store     *jobs.Store
	Timelines *jobs.TimelineCache
	Broker    renderqueue.Broker
	TTS       tts.Synthesizer
	Encoder   encoder.Encoder
	Storage   storage.Store
	Metrics   *metrics.Metrics
}

// Settings tune worker behaviour.
type Settings struct {
	Workers        int
	LeaseFor       time.Duration
	Heartbeat      time.Duration
	PollInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	TTSConcurrency int
	VoiceID        string
}

// SettingsFromConfig maps the render section.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Workers:        cfg.Render.WorkerCount,
		LeaseFor:       cfg.LeaseDuration(),
		Heartbeat:      cfg.HeartbeatInterval(),
		PollInterval:   time.Duration(cfg.Render.PollInterval) * time.Second,
		BackoffBase:    time.Duration(cfg.Render.RetryBackoffSeconds) * time.Second,
		BackoffMax:     time.Duration(cfg.Render.RetryBackoffMaxSeconds) * time.Second,
		TTSConcurrency: cfg.Render.TTSConcurrency,
		VoiceID:        cfg.Render.VoiceID,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.LeaseFor <= 0 {
		s.LeaseFor = 2 * time.Minute
	}
	if s.Heartbeat <= 0 || s.Heartbeat >= s.LeaseFor {
		s.Heartbeat = s.LeaseFor / 3
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 2 * time.Second
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 10 * time.Second
	}
	if s.BackoffMax < s.BackoffBase {
		s.BackoffMax = s.BackoffBase
	}
	if s.TTSConcurrency <= 0 {
		s.TTSConcurrency = 1
	}
	return s
}

// Status is a point-in-time view of the pool.
type Status struct {
	Running   bool
	Workers   int
	Busy      int
	Processed int64
	LastError string
}

// Pool runs render workers.
type Pool struct {
	deps     Dependencies
	settings Settings
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error

	busy      atomic.Int32
	processed atomic.Int64
}

// NewPool validates dependencies and constructs a pool.
func NewPool(deps Dependencies, settings Settings, logger *slog.Logger) (*Pool, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("render pool: store is required")
	case deps.Broker == nil:
		return nil, errors.New("render pool: broker is required")
	case deps.TTS == nil:
		return nil, errors.New("render pool: tts is required")
	case deps.Encoder == nil:
		return nil, errors.New("render pool: encoder is required")
	case deps.Storage == nil:
		return nil, errors.New("render pool: storage is required")
	}
	if deps.Timelines == nil {
		deps.Timelines = jobs.NewTimelineCache(deps.Store, 0, 0)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		deps:     deps,
		settings: settings.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "render"),
	}, nil
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("render pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.settings.Workers)
	for slot := range p.settings.Workers {
		w := &worker{
			pool:     p,
			name:     fmt.Sprintf("worker-%d", slot+1),
			consumer: fmt.Sprintf("%s/%d", consumerID(), slot+1),
		}
		go w.run(runCtx)
	}
	p.logger.Info("render pool started", logging.Int("workers", p.settings.Workers))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to be handed back.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("render pool stopped")
}

// Status reports pool health.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Running:   p.running,
		Workers:   p.settings.Workers,
		Busy:      int(p.busy.Load()),
		Processed: p.processed.Load(),
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Pool) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/controller"
	"slidecast/internal/deps"
	"slidecast/internal/ingest"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/preflight"
	"slidecast/internal/render"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services/encoder"
	"slidecast/internal/services/storage"
	"slidecast/internal/services/tts"
)

// Components are the collaborators a daemon drives. New fills any that are nil
// from configuration.
type Components struct {
	Store     *jobs.Store
	Broker    renderqueue.Broker
	Storage   storage.Store
	TTS       tts.Synthesizer
	Encoder   encoder.Encoder
	Metrics   *metrics.Metrics
	Preflight []preflight.Result
}

// Daemon coordinates the background render services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *jobs.Store
	broker    renderqueue.Broker
	artifacts storage.Store
	speech    tts.Synthesizer
	encoder   encoder.Encoder
	metrics   *metrics.Metrics
	timelines *jobs.TimelineCache

	controller *controller.Service
	ingestor   *controller.Ingestor
	pool       *render.Pool
	watchdog   *render.Watchdog
	retention  *render.Retention
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	bg        sync.WaitGroup
	preflight []preflight.Result
}

// New constructs a daemon, opening every component the caller did not supply.
// The daemon owns all components afterwards, supplied ones included.
func New(ctx context.Context, cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		preflight: comps.Preflight,
	}
	if err := d.open(ctx, comps, logger); err != nil {
		_ = d.closeComponents()
		return nil, err
	}

	d.timelines = jobs.NewTimelineCache(d.store, 0, 0)
	d.controller = controller.NewService(cfg, d.store, d.broker, d.timelines, d.metrics, logger)
	processor, err := ingest.NewProcessorFromConfig(cfg, logger)
	if err != nil {
		_ = d.closeComponents()
		return nil, err
	}
	d.ingestor = controller.NewIngestor(cfg, processor, d.store, d.artifacts, d.metrics, logger)

	pool, err := render.NewPool(render.Dependencies{
		Store:     d.store,
		Timelines: d.timelines,
		Broker:    d.broker,
		TTS:       d.speech,
		Encoder:   d.encoder,
		Storage:   d.artifacts,
		Metrics:   d.metrics,
	}, render.SettingsFromConfig(cfg), logger)
	if err != nil {
		_ = d.closeComponents()
		return nil, fmt.Errorf("create render pool: %w", err)
	}
	d.pool = pool
	d.watchdog = render.NewWatchdog(cfg, d.store, d.broker, d.metrics, logger)
	d.retention = render.NewRetention(cfg, d.store, logger)
	d.api = newAPIServer(cfg, api.NewServer(api.Options{
		Controller:     d.controller,
		Ingestor:       d.ingestor,
		Status:         d.Status,
		Metrics:        d.metrics,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}), logger)
	return d, nil
}

func (d *Daemon) open(ctx context.Context, comps Components, logger *slog.Logger) error {
	var err error
	d.store = comps.Store
	if d.store == nil {
		if d.store, err = jobs.Open(d.cfg); err != nil {
			return fmt.Errorf("open job store: %w", err)
		}
	}
	d.broker = comps.Broker
	if d.broker == nil {
		if d.broker, err = renderqueue.Open(ctx, d.cfg); err != nil {
			return fmt.Errorf("open render queue: %w", err)
		}
	}
	d.artifacts = comps.Storage
	if d.artifacts == nil {
		if d.artifacts, err = storage.Open(ctx, d.cfg, logger); err != nil {
			return fmt.Errorf("open artifact storage: %w", err)
		}
	}
	d.speech = comps.TTS
	if d.speech == nil {
		if d.speech, err = tts.New(d.cfg, logger); err != nil {
			return fmt.Errorf("create speech synthesizer: %w", err)
		}
	}
	d.encoder = comps.Encoder
	if d.encoder == nil {
		d.encoder = encoder.NewFromConfig(d.cfg, logger)
	}
	d.metrics = comps.Metrics
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	return nil
}

// Start acquires the daemon lock and launches the API, render pool, watchdog, and retention schedule.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another slidecast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		d.api.stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start render pool: %w", err)
	}
	if err := d.retention.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "retention schedule rejected", "retention_schedule_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check render.retention_schedule"),
			logging.String(logging.FieldImpact, "terminal jobs are not purged"),
		)
	}
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		d.watchdog.Run(runCtx)
	}()

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("slidecast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop halts background processing and releases the daemon lock. Jobs in
// flight are released back to the queue by the render pool.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.pool.Stop()
	d.retention.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.bg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("slidecast daemon stopped")
}

// Close stops the daemon and releases every component it holds.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeComponents()
}

func (d *Daemon) closeComponents() error {
	var errs []error
	if d.broker != nil {
		errs = append(errs, d.broker.Close())
	}
	if closer, ok := d.artifacts.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	pool := d.pool.Status()
	status := api.StatusResponse{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobsDBPath:   d.cfg.JobsDBPath(),
		LockFilePath: d.lockPath,
		Workers: api.WorkerStatus{
			Running:   pool.Running,
			Workers:   pool.Workers,
			Busy:      pool.Busy,
			Processed: pool.Processed,
			LastError: pool.LastError,
		},
		Preflight: d.preflight,
	}
	if status.Running {
		status.StartedAt = d.startedAt
	}

	if stats, err := d.broker.Stats(ctx); err != nil {
		status.Errors = append(status.Errors, "queue: "+err.Error())
	} else {
		status.Queue = stats
		d.metrics.QueueDepth(stats.Ready, stats.Delayed, stats.Leased, stats.DeadLetters)
	}
	if health, err := d.store.Health(ctx); err != nil {
		status.Errors = append(status.Errors, "jobs: "+err.Error())
	} else {
		status.Jobs = health
	}
	status.Dependencies = []deps.Status{deps.CheckEncoder(ctx, d.cfg.Encoder.Binary)}
	return status
}

package render

import (
	"context"
	"log/slog"
	"time"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/renderqueue"
)

// SweepResult counts the repairs made by one watchdog pass.
type SweepResult struct {
	Requeued   int
	Failed     int
	Orphaned   int
	Reenqueued int
}

// Watchdog reconciles the store with the broker. It reclaims processing jobs
// whose lease expired and fails queued jobs the broker has no message for.
type Watchdog struct {
	store         *jobs.Store
	broker        renderqueue.Broker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	interval      time.Duration
	orphanTimeout time.Duration
	now           func() time.Time
}

// NewWatchdog constructs a watchdog from configuration.
func NewWatchdog(cfg *config.Config, store *jobs.Store, broker renderqueue.Broker, m *metrics.Metrics, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watchdog{
		store:         store,
		broker:        broker,
		metrics:       m,
		logger:        logging.NewComponentLogger(logger, "watchdog"),
		interval:      time.Duration(cfg.Render.WatchdogInterval) * time.Second,
		orphanTimeout: time.Duration(cfg.Render.OrphanTimeoutSeconds) * time.Second,
		now:           time.Now,
	}
}

// Run sweeps every interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("watchdog sweep failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "watchdog_failed"),
				logging.String(logging.FieldErrorHint, "check job database and broker access"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep performs one reconciliation pass.
func (w *Watchdog) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := w.now()

	expired, err := w.store.ExpiredLeases(ctx, now)
	if err != nil {
		return result, err
	}
	for _, job := range expired {
		updated, err := w.store.ReclaimExpired(ctx, job.ID, now)
		if err != nil {
			if jobs.IsTransitionRejected(err) {
				continue
			}
			return result, err
		}
		logger := w.logger.With(logging.String(logging.FieldJobID, job.ID))
		if updated.Status == jobs.StatusFailed {
			result.Failed++
			w.metrics.WatchdogAction("failed")
			w.metrics.JobFinished(string(jobs.StatusFailed))
			logging.WarnWithContext(logger, "lease expired and attempts exhausted", "lease_expired",
				logging.Int("attempts", updated.Attempts),
			)
			continue
		}
		result.Requeued++
		w.metrics.WatchdogAction("requeued")
		logging.WarnWithContext(logger, "reclaimed job with expired lease", "lease_expired",
			logging.Int("attempts", updated.Attempts),
			logging.String(logging.FieldErrorHint, "a worker stopped heartbeating; check for crashes"),
		)
		requeued, err := w.ensureMessage(ctx, updated)
		if err != nil {
			return result, err
		}
		if requeued {
			result.Reenqueued++
		}
	}

	if w.orphanTimeout > 0 {
		stale, err := w.store.StaleQueued(ctx, now.Add(-w.orphanTimeout))
		if err != nil {
			return result, err
		}
		for _, job := range stale {
			has, err := w.broker.Has(ctx, job.ID)
			if err != nil {
				return result, err
			}
			if has {
				continue
			}
			if _, err := w.store.Fail(ctx, job.ID, jobs.QueueUnavailableMessage); err != nil {
				if jobs.IsTransitionRejected(err) {
					continue
				}
				return result, err
			}
			result.Orphaned++
			w.metrics.WatchdogAction("orphaned")
			w.metrics.JobFinished(string(jobs.StatusFailed))
			logging.WarnWithContext(w.logger, "failed queued job with no broker message", "orphaned_job",
				logging.String(logging.FieldJobID, job.ID),
			)
		}
	}

	if stats, err := w.broker.Stats(ctx); err == nil {
		w.metrics.QueueDepth(stats.Ready, stats.Delayed, stats.Leased, stats.DeadLetters)
	}
	return result, nil
}

// ensureMessage re-enqueues job when the broker lost its message.
func (w *Watchdog) ensureMessage(ctx context.Context, job *jobs.Job) (bool, error) {
	has, err := w.broker.Has(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	if err := w.broker.Enqueue(ctx, renderqueue.Message{JobID: job.ID, Priority: job.Priority, EnqueuedAt: w.now()}); err != nil {
		return false, err
	}
	return true, nil
}

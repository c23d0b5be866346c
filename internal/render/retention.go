package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
)

// Retention deletes terminal jobs, and the timelines only they referenced,
// once they are older than the configured number of days.
type Retention struct {
	store    *jobs.Store
	logger   *slog.Logger
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// NewRetention returns nil when retention is disabled.
func NewRetention(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Retention {
	if cfg.Render.RetentionDays <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retention{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "retention"),
		maxAge:   time.Duration(cfg.Render.RetentionDays) * 24 * time.Hour,
		schedule: cfg.Render.RetentionSchedule,
		now:      time.Now,
	}
}

// Purge runs one cleanup pass.
func (r *Retention) Purge(ctx context.Context) (int64, int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	jobsRemoved, timelinesRemoved, err := r.store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return jobsRemoved, timelinesRemoved, err
	}
	if jobsRemoved > 0 || timelinesRemoved > 0 {
		r.logger.Info("retention cleanup",
			logging.Int64("jobs_removed", jobsRemoved),
			logging.Int64("timelines_removed", timelinesRemoved),
			logging.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
		)
	}
	return jobsRemoved, timelinesRemoved, nil
}

// Start schedules Purge on the cron expression.
func (r *Retention) Start(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, _, err := r.Purge(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("retention cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "retention_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("retention scheduled",
		logging.String("schedule", r.schedule),
		logging.Duration("max_age", r.maxAge),
	)
	return nil
}

// Stop waits for a running purge to finish.
func (r *Retention) Stop() {
	if r == nil || r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

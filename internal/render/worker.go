package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services"
)

const finalizeTimeout = 30 * time.Second

var (
	errJobCancelled = errors.New("job cancelled")
	errLeaseLost    = errors.New("broker lease lost")
)

type worker struct {
	pool     *Pool
	name     string
	consumer string
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "slidecast"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func (w *worker) run(ctx context.Context) {
	p := w.pool
	defer p.wg.Done()
	logger := p.logger.With(logging.String(logging.FieldWorker, w.name))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lease, err := p.deps.Broker.Lease(ctx, w.consumer, p.settings.LeaseFor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.setLastError(err)
			logger.Error("failed to lease render message",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_lease_failed"),
				logging.String(logging.FieldErrorHint, "check queue broker connectivity"),
			)
			w.wait(ctx)
			continue
		}
		if lease == nil {
			w.wait(ctx)
			continue
		}

		p.busy.Add(1)
		p.deps.Metrics.WorkerBusy(1)
		w.handle(ctx, logger, lease)
		p.deps.Metrics.WorkerBusy(-1)
		p.busy.Add(-1)
		p.processed.Add(1)
	}
}

func (w *worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pool.settings.PollInterval):
	}
}

// handle takes one leased message to a broker outcome. Every path ends in
// exactly one of Ack, Nack or DeadLetter unless the broker lease was lost.
func (w *worker) handle(ctx context.Context, logger *slog.Logger, lease *renderqueue.Lease) {
	p := w.pool
	jobID := lease.Message.JobID
	ctx = services.WithWorker(services.WithJobID(ctx, jobID), w.name)
	logger = logging.WithContext(ctx, logger)
	finCtx, finCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finCancel()

	job, err := p.deps.Store.Get(ctx, jobID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		logging.WarnWithContext(logger, "dropping message for unknown job", "orphan_message",
			logging.String(logging.FieldErrorHint, "job was purged or never committed"),
		)
		w.ack(finCtx, logger, lease)
		return
	case err != nil:
		p.setLastError(err)
		logger.Error("failed to load job", logging.Error(err), logging.String(logging.FieldEventType, "job_load_failed"))
		w.nack(finCtx, logger, lease, p.settings.BackoffBase)
		return
	}

	switch job.Status {
	case jobs.StatusQueued:
	case jobs.StatusProcessing:
		// A previous holder's broker lease lapsed while its store lease may
		// still be live. Leave the job to the watchdog.
		logger.Info("job still processing elsewhere; deferring message",
			logging.String(logging.FieldEventType, "message_deferred"),
		)
		w.nack(finCtx, logger, lease, p.settings.LeaseFor)
		return
	default:
		logger.Debug("job already terminal; acking message", logging.String("status", string(job.Status)))
		w.ack(finCtx, logger, lease)
		return
	}

	job, err = p.deps.Store.Start(ctx, jobID, time.Now().Add(p.settings.LeaseFor))
	if err != nil {
		if jobs.IsTransitionRejected(err) {
			logger.Info("job changed before start; skipping", logging.Error(err))
			w.ack(finCtx, logger, lease)
			return
		}
		p.setLastError(err)
		logger.Error("failed to start job", logging.Error(err), logging.String(logging.FieldEventType, "job_start_failed"))
		w.nack(finCtx, logger, lease, p.settings.BackoffBase)
		return
	}
	logger.Info("render started",
		logging.String(logging.FieldTimelineID, job.TimelineRef),
		logging.Int("attempt", job.Attempts+1),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var hb sync.WaitGroup
	hb.Add(1)
	go w.heartbeat(jobCtx, &hb, logger, lease, cancel)

	started := time.Now()
	url, runErr := w.render(jobCtx, logger, job, cancel)
	cancel(nil)
	hb.Wait()

	w.finish(ctx, finCtx, logger, lease, job, url, runErr, context.Cause(jobCtx), time.Since(started))
}

// heartbeat extends both leases until ctx ends. A store miss means the job
// left processing (usually a cancel); a broker miss means another consumer
// may own the message now.
func (w *worker) heartbeat(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, lease *renderqueue.Lease, cancel context.CancelCauseFunc) {
	defer wg.Done()
	p := w.pool
	ticker := time.NewTicker(p.settings.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := p.deps.Store.ExtendLease(ctx, lease.Message.JobID, time.Now().Add(p.settings.LeaseFor)); err != nil {
			if jobs.IsTransitionRejected(err) || errors.Is(err, jobs.ErrNotFound) {
				cancel(errJobCancelled)
				return
			}
			if ctx.Err() == nil {
				logger.Warn("store heartbeat failed", logging.Error(err), logging.String(logging.FieldEventType, "heartbeat_failed"))
			}
		}
		if err := p.deps.Broker.Extend(ctx, lease, p.settings.LeaseFor); err != nil {
			if errors.Is(err, renderqueue.ErrLeaseLost) {
				cancel(errLeaseLost)
				return
			}
			if ctx.Err() == nil {
				logger.Warn("broker heartbeat failed", logging.Error(err), logging.String(logging.FieldEventType, "heartbeat_failed"))
			}
		}
	}
}

// finish records the outcome of a render attempt in the store first, then
// settles the broker message to match.
func (w *worker) finish(ctx, finCtx context.Context, logger *slog.Logger, lease *renderqueue.Lease, job *jobs.Job, url string, runErr, cause error, elapsed time.Duration) {
	p := w.pool
	m := p.deps.Metrics

	if runErr == nil {
		if _, err := p.deps.Store.Complete(finCtx, job.ID, url); err != nil {
			if jobs.IsTransitionRejected(err) {
				logger.Info("job changed during render; discarding output", logging.Error(err))
				w.discardOutput(finCtx, logger, job)
				w.ack(finCtx, logger, lease)
				m.RenderObserved("discarded", elapsed)
				return
			}
			p.setLastError(err)
			logger.Error("failed to record completion", logging.Error(err), logging.String(logging.FieldEventType, "job_complete_failed"))
			w.nack(finCtx, logger, lease, p.settings.BackoffBase)
			return
		}
		w.ack(finCtx, logger, lease)
		m.JobFinished(string(jobs.StatusCompleted))
		m.RenderObserved("completed", elapsed)
		logger.Info("render completed",
			logging.String("output_url", url),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "job_completed"),
		)
		return
	}

	switch {
	case errors.Is(cause, errJobCancelled):
		logger.Info("render cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
		w.ack(finCtx, logger, lease)
		m.RenderObserved("cancelled", elapsed)
		return
	case errors.Is(cause, errLeaseLost):
		// The message may already be with another consumer; only the store
		// is settled here.
		updated, err := p.deps.Store.RetryOrFail(finCtx, job.ID, "render lease lost")
		if err == nil && updated.Status == jobs.StatusFailed {
			m.JobFinished(string(jobs.StatusFailed))
		}
		m.RenderObserved("lease_lost", elapsed)
		logging.WarnWithContext(logger, "broker lease lost mid-render", "lease_lost",
			logging.String(logging.FieldErrorHint, "raise render.lease_seconds or check broker latency"),
		)
		return
	case ctx.Err() != nil:
		if _, err := p.deps.Store.Release(finCtx, job.ID); err != nil && !jobs.IsTransitionRejected(err) {
			logger.Warn("failed to release job on shutdown", logging.Error(err))
		}
		w.nack(finCtx, logger, lease, 0)
		m.RenderObserved("interrupted", elapsed)
		logger.Info("render interrupted by shutdown; job requeued")
		return
	}

	details := services.Details(runErr)
	attrs := []logging.Attr{
		logging.Error(runErr),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Duration("elapsed", elapsed),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}

	if !services.IsRetryable(runErr) {
		if _, err := p.deps.Store.Fail(finCtx, job.ID, runErr.Error()); err != nil && !jobs.IsTransitionRejected(err) {
			p.setLastError(err)
			logger.Error("failed to record failure", logging.Error(err))
		}
		w.deadLetter(finCtx, logger, lease, runErr.Error())
		m.JobFinished(string(jobs.StatusFailed))
		m.RenderObserved("failed", elapsed)
		logging.ErrorWithContext(logger, "render failed permanently", "job_failed", attrs...)
		return
	}

	updated, err := p.deps.Store.RetryOrFail(finCtx, job.ID, runErr.Error())
	if err != nil {
		if jobs.IsTransitionRejected(err) {
			w.ack(finCtx, logger, lease)
			return
		}
		p.setLastError(err)
		logger.Error("failed to record attempt", logging.Error(err))
		w.nack(finCtx, logger, lease, p.settings.BackoffBase)
		return
	}
	m.RenderObserved("retried", elapsed)
	if updated.Status == jobs.StatusQueued {
		delay := renderqueue.Backoff(updated.Attempts, p.settings.BackoffBase, p.settings.BackoffMax)
		w.nack(finCtx, logger, lease, delay)
		m.JobRetried()
		logging.WarnWithContext(logger, "render attempt failed; retrying", "job_retry",
			append(attrs, logging.Int("attempt", updated.Attempts), logging.Duration("retry_in", delay))...,
		)
		return
	}
	w.deadLetter(finCtx, logger, lease, runErr.Error())
	m.JobFinished(string(jobs.StatusFailed))
	logging.ErrorWithContext(logger, "render attempts exhausted", "job_failed",
		append(attrs, logging.Int("attempts", updated.Attempts))...,
	)
}

func (w *worker) ack(ctx context.Context, logger *slog.Logger, lease *renderqueue.Lease) {
	if err := w.pool.deps.Broker.Ack(ctx, lease); err != nil && !errors.Is(err, renderqueue.ErrLeaseLost) {
		logger.Warn("ack failed", logging.Error(err), logging.String(logging.FieldEventType, "queue_ack_failed"))
	}
}

func (w *worker) nack(ctx context.Context, logger *slog.Logger, lease *renderqueue.Lease, delay time.Duration) {
	if err := w.pool.deps.Broker.Nack(ctx, lease, delay); err != nil && !errors.Is(err, renderqueue.ErrLeaseLost) {
		logger.Warn("nack failed", logging.Error(err), logging.String(logging.FieldEventType, "queue_nack_failed"))
	}
}

func (w *worker) deadLetter(ctx context.Context, logger *slog.Logger, lease *renderqueue.Lease, reason string) {
	if err := w.pool.deps.Broker.DeadLetter(ctx, lease, reason); err != nil && !errors.Is(err, renderqueue.ErrLeaseLost) {
		logger.Warn("dead-letter failed", logging.Error(err), logging.String(logging.FieldEventType, "queue_dead_letter_failed"))
	}
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// casStatus moves id from one of from to to, applying set (a comma-prefixed
// SET fragment) in the same statement. When no row matches, the current row
// decides between ErrNotFound, ErrInvalidTransition and ErrConflict.
func (s *Store) casStatus(ctx context.Context, id string, from []Status, to Status, set string, args ...any) (*Job, error) {
	query := `UPDATE render_jobs SET status = ?, updated_at = ?` + set +
		` WHERE id = ? AND status IN (` + makePlaceholders(len(from)) + `)`
	full := make([]any, 0, len(args)+len(from)+3)
	full = append(full, string(to), formatTime(time.Now()))
	full = append(full, args...)
	full = append(full, id)
	full = append(full, statusArgs(from)...)

	res, err := s.execWithRetry(ctx, query, full...)
	if err != nil {
		return nil, fmt.Errorf("update job %s to %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, s.transitionMiss(ctx, id, to)
	}
	return s.Get(ctx, id)
}

func (s *Store) transitionMiss(ctx context.Context, id string, to Status) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	cause := ErrConflict
	if current.Status.IsTerminal() {
		cause = ErrInvalidTransition
	}
	return &TransitionError{JobID: id, Current: current.Status, Target: to, Err: cause}
}

// Start claims a queued job for processing and records its lease.
func (s *Store) Start(ctx context.Context, id string, leaseUntil time.Time) (*Job, error) {
	now := formatTime(time.Now())
	return s.casStatus(ctx, id, []Status{StatusQueued}, StatusProcessing,
		`, started_at = ?, lease_expires_at = ?, progress = 0, progress_message = ?`,
		now, formatTime(leaseUntil), "Starting render",
	)
}

// ExtendLease pushes the lease of a processing job forward.
func (s *Store) ExtendLease(ctx context.Context, id string, leaseUntil time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE render_jobs SET lease_expires_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		formatTime(leaseUntil), formatTime(time.Now()), id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return s.transitionMiss(ctx, id, StatusProcessing)
	}
	return nil
}

// UpdateProgress raises the stored progress of a processing job. Values are
// clamped to [0,100]; a value not above the stored one is a no-op and
// reports false.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64, message string) (bool, error) {
	if math.IsNaN(percent) {
		return false, errors.New("update progress: percent is NaN")
	}
	percent = math.Max(0, math.Min(100, percent))
	res, err := s.execWithRetry(ctx,
		`UPDATE render_jobs SET progress = ?, progress_message = COALESCE(?, progress_message), updated_at = ?
         WHERE id = ? AND status = ? AND progress < ?`,
		percent, nullableString(message), formatTime(time.Now()), id, StatusProcessing, percent,
	)
	if err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Release hands a processing job back to the queue without consuming an
// attempt. Workers call it when they stop for shutdown mid-render.
func (s *Store) Release(ctx context.Context, id string) (*Job, error) {
	return s.casStatus(ctx, id, []Status{StatusProcessing}, StatusQueued,
		`, progress = 0, progress_message = ?, lease_expires_at = NULL`,
		"Requeued after worker shutdown",
	)
}

// Complete finishes a processing job with its artifact URL.
func (s *Store) Complete(ctx context.Context, id, outputURL string) (*Job, error) {
	now := formatTime(time.Now())
	return s.casStatus(ctx, id, []Status{StatusProcessing}, StatusCompleted,
		`, output_url = ?, progress = 100, progress_message = ?, completed_at = ?, lease_expires_at = NULL`,
		outputURL, "Render complete", now,
	)
}

// Cancel moves a queued or processing job to cancelled.
func (s *Store) Cancel(ctx context.Context, id string) (*Job, error) {
	now := formatTime(time.Now())
	return s.casStatus(ctx, id, []Status{StatusQueued, StatusProcessing}, StatusCancelled,
		`, progress_message = ?, completed_at = ?, lease_expires_at = NULL`,
		"Cancelled by request", now,
	)
}

// Fail terminates a queued or processing job with message.
func (s *Store) Fail(ctx context.Context, id, message string) (*Job, error) {
	now := formatTime(time.Now())
	return s.casStatus(ctx, id, []Status{StatusQueued, StatusProcessing}, StatusFailed,
		`, error_message = ?, completed_at = ?, lease_expires_at = NULL`,
		message, now,
	)
}

// RetryOrFail records a failed attempt of a processing job. The job goes back
// to queued while attempts remain, otherwise it fails with message. The
// returned job tells the caller which happened.
func (s *Store) RetryOrFail(ctx context.Context, id, message string) (*Job, error) {
	return s.retryOrFail(ctx, id, message, "")
}

// ReclaimExpired is RetryOrFail for a job whose lease expired before now. A
// job that heartbeated in the meantime is left alone and reported as a
// conflict.
func (s *Store) ReclaimExpired(ctx context.Context, id string, now time.Time) (*Job, error) {
	return s.retryOrFail(ctx, id, "render lease expired", ` AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`, formatTime(now))
}

func (s *Store) retryOrFail(ctx context.Context, id, message, extraWhere string, extraArgs ...any) (*Job, error) {
	now := formatTime(time.Now())
	retrying := `attempts + 1 < max_attempts`
	query := `UPDATE render_jobs SET
            status = CASE WHEN ` + retrying + ` THEN ? ELSE ? END,
            error_message = CASE WHEN ` + retrying + ` THEN NULL ELSE ? END,
            progress_message = CASE WHEN ` + retrying + ` THEN ? ELSE progress_message END,
            progress = CASE WHEN ` + retrying + ` THEN 0 ELSE progress END,
            completed_at = CASE WHEN ` + retrying + ` THEN NULL ELSE ? END,
            attempts = attempts + 1,
            lease_expires_at = NULL,
            updated_at = ?
        WHERE id = ? AND status = ?` + extraWhere
	args := []any{
		StatusQueued, StatusFailed,
		message,
		"Retrying after: " + message,
		now,
		now,
		id, StatusProcessing,
	}
	args = append(args, extraArgs...)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, s.transitionMiss(ctx, id, StatusQueued)
	}
	return s.Get(ctx, id)
}

// ExpiredLeases lists processing jobs whose lease ended before now.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM render_jobs
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?
         ORDER BY lease_expires_at`,
		StatusProcessing, formatTime(now),
	)
}

// StaleQueued lists queued jobs not touched since cutoff.
func (s *Store) StaleQueued(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM render_jobs WHERE status = ? AND updated_at < ? ORDER BY created_at`,
		StatusQueued, formatTime(cutoff),
	)
}

// PurgeTerminal deletes terminal jobs last updated before cutoff, then
// timelines created before cutoff that no job references.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	args := append(statusArgs(terminal), formatTime(cutoff))
	res, err := s.execWithRetry(ctx,
		`DELETE FROM render_jobs WHERE status IN (`+makePlaceholders(len(terminal))+`) AND updated_at < ?`,
		args...,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("purge jobs: %w", err)
	}
	jobsRemoved, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("rows affected: %w", err)
	}

	res, err = s.execWithRetry(ctx,
		`DELETE FROM timelines WHERE created_at < ? AND id NOT IN (SELECT timeline_ref FROM render_jobs)`,
		formatTime(cutoff),
	)
	if err != nil {
		return jobsRemoved, 0, fmt.Errorf("purge timelines: %w", err)
	}
	timelinesRemoved, err := res.RowsAffected()
	if err != nil {
		return jobsRemoved, 0, fmt.Errorf("rows affected: %w", err)
	}
	return jobsRemoved, timelinesRemoved, nil
}

// IsTransitionRejected reports whether err is a lost CAS or a transition out
// of a terminal state.
func IsTransitionRejected(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidTransition)
}

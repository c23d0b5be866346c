package logging

import (
	"context"
	"log/slog"

	"slidecast/internal/services"
)

// Structured logging keys shared across packages.
const (
	FieldComponent       = "component"
	FieldJobID           = "job_id"
	FieldTimelineID      = "timeline_id"
	FieldStage           = "stage"
	FieldWorker          = "worker"
	FieldCorrelationID   = "correlation_id"
	FieldProgressPercent = "progress_percent"

	// FieldEventType classifies a line for filtering, e.g. "lease_expired".
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind is the services error classification of a failure.
	FieldErrorKind = "error_kind"
)

// WithContext returns logger tagged with the job, stage, worker and request
// identifiers stored on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.JobIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, slog.String(FieldStage, stage))
	}
	if worker, ok := services.WorkerFromContext(ctx); ok {
		args = append(args, slog.String(FieldWorker, worker))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldCorrelationID, rid))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}

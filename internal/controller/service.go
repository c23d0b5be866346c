package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"slidecast/internal/config"
	"slidecast/internal/jobs"
	"slidecast/internal/logging"
	"slidecast/internal/metrics"
	"slidecast/internal/renderqueue"
	"slidecast/internal/services"
)

// SubmitRequest asks for a timeline to be rendered.
type SubmitRequest struct {
	OwnerID       string `json:"ownerId" validate:"required,max=128"`
	TimelineRef   string `json:"timelineRef" validate:"required,uuid"`
	OutputFormat  string `json:"outputFormat" validate:"required,oneof=mp4 webm mov"`
	QualityPreset string `json:"qualityPreset" validate:"required,oneof=draft standard high"`
	Priority      int    `json:"priority" validate:"gte=0,lte=9"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// Service implements the render job operations over the job store and the
// broker. The store is authoritative; the broker only carries delivery.
type Service struct {
	store       *jobs.Store
	broker      renderqueue.Broker
	timelines   *jobs.TimelineCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	maxAttempts int
}

// NewService wires the controller. A nil timelines cache is created over store.
func NewService(cfg *config.Config, store *jobs.Store, broker renderqueue.Broker, timelines *jobs.TimelineCache, m *metrics.Metrics, logger *slog.Logger) *Service {
	if timelines == nil {
		timelines = jobs.NewTimelineCache(store, 0, 0)
	}
	maxAttempts := jobs.DefaultMaxAttempts
	if cfg != nil && cfg.Render.MaxAttempts > 0 {
		maxAttempts = cfg.Render.MaxAttempts
	}
	return &Service{
		store:       store,
		broker:      broker,
		timelines:   timelines,
		metrics:     m,
		logger:      logging.NewComponentLogger(logger, "controller"),
		validate:    newValidator(),
		maxAttempts: maxAttempts,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Submit validates req, records a queued job and enqueues it. When the
// broker rejects the message the job is failed with QueueUnavailableMessage
// and the returned error wraps services.ErrQueueUnavailable.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.TimelineRef = strings.TrimSpace(req.TimelineRef)
	req.OutputFormat = strings.ToLower(strings.TrimSpace(req.OutputFormat))
	req.QualityPreset = strings.ToLower(strings.TrimSpace(req.QualityPreset))
	if err := s.validateRequest(req); err != nil {
		return SubmitResponse{}, err
	}

	exists, err := s.store.TimelineExists(ctx, req.TimelineRef)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("lookup timeline: %w", err)
	}
	if !exists {
		return SubmitResponse{}, invalidField("timelineRef", "timeline does not exist")
	}

	job, err := s.store.Create(ctx, jobs.NewJob{
		OwnerID:       req.OwnerID,
		TimelineRef:   req.TimelineRef,
		OutputFormat:  req.OutputFormat,
		QualityPreset: req.QualityPreset,
		Priority:      req.Priority,
		MaxAttempts:   s.maxAttempts,
	})
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("create job: %w", err)
	}
	if err := s.enqueue(ctx, job); err != nil {
		return SubmitResponse{}, err
	}
	s.metrics.JobSubmitted()
	s.logger.Info("render job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTimelineID, job.TimelineRef),
		logging.String("owner_id", job.OwnerID),
		logging.String("output_format", job.OutputFormat),
		logging.String("quality_preset", job.QualityPreset),
	)
	return SubmitResponse{JobID: job.ID, Status: job.Status}, nil
}

func (s *Service) enqueue(ctx context.Context, job *jobs.Job) error {
	msg := renderqueue.Message{JobID: job.ID, Priority: job.Priority, EnqueuedAt: time.Now().UTC()}
	enqueueErr := s.broker.Enqueue(ctx, msg)
	if enqueueErr == nil {
		return nil
	}
	logging.ErrorWithContext(s.logger, "enqueue render job failed", "job_enqueue_failed",
		logging.String(logging.FieldJobID, job.ID),
		logging.Error(enqueueErr),
		logging.String(logging.FieldErrorHint, "check the queue backend; the job was marked failed"),
	)
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.store.Fail(failCtx, job.ID, jobs.QueueUnavailableMessage); err != nil {
		s.logger.Warn("mark job failed after enqueue error",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	} else {
		s.metrics.JobFinished(string(jobs.StatusFailed))
	}
	return services.Wrap(services.ErrQueueUnavailable, "controller", "enqueue", "render queue unavailable", enqueueErr)
}

func (s *Service) validateRequest(req SubmitRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: []FieldError{{Field: "request", Message: err.Error()}}}
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Status returns the current view of a job.
func (s *Service) Status(ctx context.Context, id string) (JobView, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return NewJobView(job), nil
}

// Cancel moves a queued or processing job to cancelled. Terminal jobs yield
// ErrConflict. A processing job stops at the worker's next checkpoint.
func (s *Service) Cancel(ctx context.Context, id string) (JobView, error) {
	job, err := s.store.Cancel(ctx, id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return JobView{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	case jobs.IsTransitionRejected(err):
		return JobView{}, fmt.Errorf("%w: %v", ErrConflict, err)
	case err != nil:
		return JobView{}, fmt.Errorf("cancel job: %w", err)
	}
	s.metrics.JobFinished(string(jobs.StatusCancelled))
	s.logger.Info("render job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldJobID, job.ID),
	)
	return NewJobView(job), nil
}

// List returns jobs for owner (all owners when empty), newest first,
// optionally restricted to statuses.
func (s *Service) List(ctx context.Context, owner string, statuses ...jobs.Status) ([]JobView, error) {
	list, err := s.store.List(ctx, jobs.Filter{OwnerID: strings.TrimSpace(owner), Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	views := make([]JobView, 0, len(list))
	for _, job := range list {
		views = append(views, NewJobView(job))
	}
	return views, nil
}

// Retry resubmits a failed job as a new job with a fresh attempt budget.
// The failed job stays as history.
func (s *Service) Retry(ctx context.Context, id string) (SubmitResponse, error) {
	job, err := s.get(ctx, id)
	if err != nil {
		return SubmitResponse{}, err
	}
	if job.Status != jobs.StatusFailed {
		return SubmitResponse{}, fmt.Errorf("%w: job %s is %s, only failed jobs can be retried", ErrConflict, id, job.Status)
	}
	resp, err := s.Submit(ctx, SubmitRequest{
		OwnerID:       job.OwnerID,
		TimelineRef:   job.TimelineRef,
		OutputFormat:  job.OutputFormat,
		QualityPreset: job.QualityPreset,
		Priority:      job.Priority,
	})
	if err != nil {
		return SubmitResponse{}, err
	}
	s.logger.Info("failed render job resubmitted",
		logging.String(logging.FieldEventType, "job_retried"),
		logging.String(logging.FieldJobID, resp.JobID),
		logging.String("previous_job_id", job.ID),
	)
	return resp, nil
}

// Timeline returns a stored timeline record.
func (s *Service) Timeline(ctx context.Context, id string) (*jobs.TimelineRecord, error) {
	record, err := s.timelines.Get(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, fmt.Errorf("timeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return record, nil
}

// QueueStats reports broker depth for status endpoints.
func (s *Service) QueueStats(ctx context.Context) (renderqueue.Stats, error) {
	return s.broker.Stats(ctx)
}

// JobHealth reports job counts by status.
func (s *Service) JobHealth(ctx context.Context) (jobs.HealthSummary, error) {
	return s.store.Health(ctx)
}

func (s *Service) get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := s.store.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

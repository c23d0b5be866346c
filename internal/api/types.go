package api

import (
	"time"

	"slidecast/internal/controller"
	"slidecast/internal/deps"
	"slidecast/internal/jobs"
	"slidecast/internal/preflight"
	"slidecast/internal/renderqueue"
	"slidecast/internal/timeline"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// OwnerHeader identifies the uploading owner on ingest requests.
const OwnerHeader = "X-Owner-ID"

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Kind      string                  `json:"kind,omitempty"`
	Fields    []controller.FieldError `json:"fields,omitempty"`
	RequestID string                  `json:"requestId,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []controller.JobView `json:"jobs"`
}

// TimelineResponse is a stored timeline with its ownership metadata.
type TimelineResponse struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"ownerId"`
	SourceURL string            `json:"sourceUrl,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Timeline  timeline.Timeline `json:"timeline"`
}

// WorkerStatus mirrors the render pool state.
type WorkerStatus struct {
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Processed int64  `json:"processed"`
	LastError string `json:"lastError,omitempty"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    time.Time          `json:"startedAt"`
	JobsDBPath   string             `json:"jobsDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workers      WorkerStatus       `json:"workers"`
	Queue        renderqueue.Stats  `json:"queue"`
	Jobs         jobs.HealthSummary `json:"jobs"`
	Dependencies []deps.Status      `json:"dependencies"`
	Preflight    []preflight.Result `json:"preflight,omitempty"`
	Errors       []string           `json:"errors,omitempty"`
}

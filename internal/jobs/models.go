package jobs

import (
	"time"

	"slidecast/internal/timeline"
)

// Status represents the lifecycle of a render job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// QueueUnavailableMessage is stored on jobs failed because the broker
// rejected their message at submit time.
const QueueUnavailableMessage = "queue unavailable"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Job is a persisted render job.
type Job struct {
	ID              string
	OwnerID         string
	TimelineRef     string
	OutputFormat    string
	QualityPreset   string
	Priority        int
	Status          Status
	Progress        float64
	ProgressMessage string
	OutputURL       string
	ErrorMessage    string
	Attempts        int
	MaxAttempts     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LeaseExpiresAt  *time.Time
}

// NewJob carries the caller-supplied fields of a job insert.
type NewJob struct {
	OwnerID       string
	TimelineRef   string
	OutputFormat  string
	QualityPreset string
	Priority      int
	MaxAttempts   int
}

// TimelineRecord is a stored timeline with its ownership metadata.
type TimelineRecord struct {
	ID        string
	OwnerID   string
	SourceURL string
	CreatedAt time.Time
	Timeline  timeline.Timeline
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	OwnerID  string
	Statuses []Status
	Limit    int
}

// HealthSummary aggregates job counts for diagnostics.
type HealthSummary struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

package controller

import (
	"time"

	"slidecast/internal/jobs"
)

// JobView is the caller-facing shape of a render job.
type JobView struct {
	ID              string      `json:"id"`
	OwnerID         string      `json:"ownerId"`
	TimelineRef     string      `json:"timelineRef"`
	OutputFormat    string      `json:"outputFormat"`
	QualityPreset   string      `json:"qualityPreset"`
	Priority        int         `json:"priority"`
	Status          jobs.Status `json:"status"`
	Progress        float64     `json:"progress"`
	ProgressMessage string      `json:"progressMessage,omitempty"`
	OutputURL       string      `json:"outputUrl,omitempty"`
	ErrorMessage    string      `json:"errorMessage,omitempty"`
	Attempts        int         `json:"attempts"`
	MaxAttempts     int         `json:"maxAttempts"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
}

// NewJobView converts a stored job.
func NewJobView(job *jobs.Job) JobView {
	return JobView{
		ID:              job.ID,
		OwnerID:         job.OwnerID,
		TimelineRef:     job.TimelineRef,
		OutputFormat:    job.OutputFormat,
		QualityPreset:   job.QualityPreset,
		Priority:        job.Priority,
		Status:          job.Status,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		OutputURL:       job.OutputURL,
		ErrorMessage:    job.ErrorMessage,
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

package jobs

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobColumns = "id, owner_id, timeline_ref, output_format, quality_preset, priority, status, progress, progress_message, output_url, error_message, attempts, max_attempts, created_at, updated_at, started_at, completed_at, lease_expires_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job             Job
		statusStr       string
		progressMessage sql.NullString
		outputURL       sql.NullString
		errorMessage    sql.NullString
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		leaseRaw        sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.TimelineRef,
		&job.OutputFormat,
		&job.QualityPreset,
		&job.Priority,
		&statusStr,
		&job.Progress,
		&progressMessage,
		&outputURL,
		&errorMessage,
		&job.Attempts,
		&job.MaxAttempts,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&leaseRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(statusStr)
	job.ProgressMessage = progressMessage.String
	job.OutputURL = outputURL.String
	job.ErrorMessage = errorMessage.String
	if ts, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = ts
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.LeaseExpiresAt = parseNullableTime(leaseRaw)
	return &job, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	ts, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &ts
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}

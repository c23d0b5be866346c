package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slidecast/internal/timeline"
)

// SaveTimeline stores tl under its id. Timelines are immutable; saving an id
// twice is an error.
func (s *Store) SaveTimeline(ctx context.Context, ownerID, sourceURL string, tl timeline.Timeline) (*TimelineRecord, error) {
	data, err := timeline.Marshal(tl)
	if err != nil {
		return nil, err
	}
	created := time.Now().UTC()
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO timelines (id, owner_id, source_url, title, scene_count, total_duration, timeline_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tl.ID,
		ownerID,
		nullableString(sourceURL),
		nullableString(tl.Title),
		len(tl.Scenes),
		tl.TotalDuration,
		string(data),
		formatTime(created),
	); err != nil {
		return nil, fmt.Errorf("insert timeline: %w", err)
	}
	return &TimelineRecord{ID: tl.ID, OwnerID: ownerID, SourceURL: sourceURL, CreatedAt: created, Timeline: tl}, nil
}

// GetTimeline loads a stored timeline, returning ErrNotFound when missing.
func (s *Store) GetTimeline(ctx context.Context, id string) (*TimelineRecord, error) {
	var (
		record     TimelineRecord
		sourceURL  sql.NullString
		payload    string
		createdRaw string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, owner_id, source_url, timeline_json, created_at FROM timelines WHERE id = ?`, id,
	).Scan(&record.ID, &record.OwnerID, &sourceURL, &payload, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("timeline %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	tl, err := timeline.Unmarshal([]byte(payload))
	if err != nil {
		return nil, err
	}
	record.SourceURL = sourceURL.String
	record.Timeline = tl
	if ts, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = ts
	}
	return &record, nil
}

// TimelineExists reports whether id is stored.
func (s *Store) TimelineExists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM timelines WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("check timeline: %w", err)
	}
	return count > 0, nil
}

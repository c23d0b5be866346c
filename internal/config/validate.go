package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateTimeline(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIngest() error {
	if err := ensurePositiveMap(map[string]int{
		"ingest.max_upload_mib": c.Ingest.MaxUploadMiB,
		"ingest.max_part_mib":   c.Ingest.MaxPartMiB,
		"ingest.max_total_mib":  c.Ingest.MaxTotalMiB,
		"ingest.max_parts":      c.Ingest.MaxParts,
		"ingest.batch_size":     c.Ingest.BatchSize,
	}); err != nil {
		return err
	}
	if !(c.Ingest.DefaultDurationSeconds > 0) || math.IsInf(c.Ingest.DefaultDurationSeconds, 1) {
		return errors.New("ingest.default_duration_seconds must be a positive finite number")
	}
	if !(c.Ingest.MinDurationSeconds >= 0) || math.IsInf(c.Ingest.MinDurationSeconds, 1) {
		return errors.New("ingest.min_duration_seconds must be a finite number >= 0")
	}
	if !(c.Ingest.TransitionDurationSeconds >= 0) || math.IsInf(c.Ingest.TransitionDurationSeconds, 1) {
		return errors.New("ingest.transition_duration_seconds must be a finite number >= 0")
	}
	return nil
}

func (c *Config) validateTimeline() error {
	parts := strings.Split(c.Timeline.Resolution, "x")
	if len(parts) != 2 {
		return fmt.Errorf("timeline.resolution %q must look like 1920x1080", c.Timeline.Resolution)
	}
	for _, part := range parts {
		if n, err := strconv.Atoi(part); err != nil || n <= 0 {
			return fmt.Errorf("timeline.resolution %q must look like 1920x1080", c.Timeline.Resolution)
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.worker_count":              c.Render.WorkerCount,
		"render.max_attempts":              c.Render.MaxAttempts,
		"render.lease_seconds":             c.Render.LeaseSeconds,
		"render.heartbeat_interval":        c.Render.HeartbeatInterval,
		"render.poll_interval":             c.Render.PollInterval,
		"render.retry_backoff_seconds":     c.Render.RetryBackoffSeconds,
		"render.retry_backoff_max_seconds": c.Render.RetryBackoffMaxSeconds,
		"render.watchdog_interval":         c.Render.WatchdogInterval,
		"render.orphan_timeout_seconds":    c.Render.OrphanTimeoutSeconds,
		"render.tts_concurrency":           c.Render.TTSConcurrency,
	}); err != nil {
		return err
	}
	if c.Render.LeaseSeconds <= c.Render.HeartbeatInterval {
		return errors.New("render.lease_seconds must be greater than render.heartbeat_interval")
	}
	if c.Render.RetentionDays < 0 {
		return errors.New("render.retention_days must be >= 0")
	}
	if c.Render.RetentionDays > 0 {
		if _, err := cron.ParseStandard(c.Render.RetentionSchedule); err != nil {
			return fmt.Errorf("render.retention_schedule %q: %w", c.Render.RetentionSchedule, err)
		}
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueSQLite:
	case QueueRedis:
		if c.Queue.RedisAddr == "" {
			return errors.New("queue.redis_addr must be set when queue.backend is redis (or set SLIDECAST_REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q", c.Queue.Backend)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.backend is gcs (or set GOOGLE_CLOUD_BUCKET)")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Backend {
	case TTSSilence:
	case TTSHTTP:
		if c.TTS.Endpoint == "" {
			return errors.New("tts.endpoint must be set when tts.backend is http")
		}
	default:
		return fmt.Errorf("tts.backend: unsupported value %q", c.TTS.Backend)
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.TimeoutSeconds <= 0 {
		return errors.New("encoder.timeout_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

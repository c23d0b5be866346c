package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeTimeline()
	c.normalizeQueue()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeTTS()
	if err := c.normalizeEncoder(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeIngest() {
	c.Ingest.TransitionType = strings.ToLower(strings.TrimSpace(c.Ingest.TransitionType))
	if c.Ingest.TransitionType == "" {
		c.Ingest.TransitionType = defaultTransitionType
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = defaultBatchSize
	}
	if c.Ingest.Workers < 0 {
		c.Ingest.Workers = 0
	}
	if c.Ingest.ThumbnailWidth <= 0 {
		c.Ingest.ThumbnailWidth = defaultThumbnailWidth
	}
	c.Ingest.FontPath = strings.TrimSpace(c.Ingest.FontPath)
	if c.Ingest.FontPath != "" {
		if expanded, err := expandPath(c.Ingest.FontPath); err == nil {
			c.Ingest.FontPath = expanded
		}
	}
}

func (c *Config) normalizeTimeline() {
	c.Timeline.Resolution = strings.ToLower(strings.TrimSpace(c.Timeline.Resolution))
	if c.Timeline.Resolution == "" {
		c.Timeline.Resolution = defaultResolution
	}
	c.Timeline.AspectRatio = strings.TrimSpace(c.Timeline.AspectRatio)
	if c.Timeline.AspectRatio == "" {
		c.Timeline.AspectRatio = defaultAspectRatio
	}
	if c.Timeline.FrameRate <= 0 {
		c.Timeline.FrameRate = defaultFrameRate
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueSQLite
	}
	if value, ok := os.LookupEnv("SLIDECAST_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Queue.RedisAddr = strings.TrimSpace(value)
	}
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	c.Queue.RedisPrefix = strings.TrimSpace(c.Queue.RedisPrefix)
	if c.Queue.RedisPrefix == "" {
		c.Queue.RedisPrefix = defaultRedisPrefix
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	var err error
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultStorageDir
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.GCSBucket == "" {
		if value, ok := os.LookupEnv("GOOGLE_CLOUD_BUCKET"); ok {
			c.Storage.GCSBucket = value
		}
	}
	c.Storage.GCSBucket = strings.TrimSpace(c.Storage.GCSBucket)
	c.Storage.GCSPrefix = strings.Trim(strings.TrimSpace(c.Storage.GCSPrefix), "/")
	if c.Storage.GCSCredentialsFile != "" {
		if c.Storage.GCSCredentialsFile, err = expandPath(strings.TrimSpace(c.Storage.GCSCredentialsFile)); err != nil {
			return fmt.Errorf("storage.gcs_credentials_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeTTS() {
	c.TTS.Backend = strings.ToLower(strings.TrimSpace(c.TTS.Backend))
	if c.TTS.Backend == "" {
		c.TTS.Backend = TTSSilence
	}
	c.TTS.Endpoint = strings.TrimSpace(c.TTS.Endpoint)
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		if value, ok := os.LookupEnv("SLIDECAST_TTS_API_KEY"); ok {
			c.TTS.APIKey = strings.TrimSpace(value)
		}
	}
	if c.TTS.WordsPerSecond <= 0 {
		c.TTS.WordsPerSecond = defaultWordsPerSecond
	}
	if c.TTS.SampleRate <= 0 {
		c.TTS.SampleRate = defaultSampleRate
	}
	if c.TTS.RequestsPerSecond < 0 {
		c.TTS.RequestsPerSecond = 0
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
}

func (c *Config) normalizeEncoder() error {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	var err error
	if strings.TrimSpace(c.Encoder.ScratchDir) == "" {
		c.Encoder.ScratchDir = defaultScratchDir
	}
	if c.Encoder.ScratchDir, err = expandPath(c.Encoder.ScratchDir); err != nil {
		return fmt.Errorf("encoder.scratch_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

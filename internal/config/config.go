package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Ingest contains limits and defaults applied to uploaded decks.
type Ingest struct {
	MaxUploadMiB              int     `toml:"max_upload_mib"`
	MaxPartMiB                int     `toml:"max_part_mib"`
	MaxTotalMiB               int     `toml:"max_total_mib"`
	MaxParts                  int     `toml:"max_parts"`
	Workers                   int     `toml:"workers"`
	BatchSize                 int     `toml:"batch_size"`
	DefaultDurationSeconds    float64 `toml:"default_duration_seconds"`
	MinDurationSeconds        float64 `toml:"min_duration_seconds"`
	TransitionType            string  `toml:"transition_type"`
	TransitionDurationSeconds float64 `toml:"transition_duration_seconds"`
	UseNotesTiming            bool    `toml:"use_notes_timing"`
	Thumbnails                bool    `toml:"thumbnails"`
	ThumbnailWidth            int     `toml:"thumbnail_width"`
	FontPath                  string  `toml:"font_path"`
}

// Timeline contains output settings stamped onto synthesized timelines.
type Timeline struct {
	Resolution  string `toml:"resolution"`
	FrameRate   int    `toml:"frame_rate"`
	AspectRatio string `toml:"aspect_ratio"`
}

// Render contains worker pool, lease, and retry configuration.
type Render struct {
	WorkerCount            int    `toml:"worker_count"`
	MaxAttempts            int    `toml:"max_attempts"`
	LeaseSeconds           int    `toml:"lease_seconds"`
	HeartbeatInterval      int    `toml:"heartbeat_interval"`
	PollInterval           int    `toml:"poll_interval"`
	RetryBackoffSeconds    int    `toml:"retry_backoff_seconds"`
	RetryBackoffMaxSeconds int    `toml:"retry_backoff_max_seconds"`
	WatchdogInterval       int    `toml:"watchdog_interval"`
	OrphanTimeoutSeconds   int    `toml:"orphan_timeout_seconds"`
	RetentionDays          int    `toml:"retention_days"`
	RetentionSchedule      string `toml:"retention_schedule"`
	TTSConcurrency         int    `toml:"tts_concurrency"`
	VoiceID                string `toml:"voice_id"`
}

// Queue selects and configures the render queue broker.
type Queue struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// Storage selects where uploads and rendered artifacts are written.
type Storage struct {
	Backend            string `toml:"backend"`
	LocalDir           string `toml:"local_dir"`
	PublicBaseURL      string `toml:"public_base_url"`
	GCSBucket          string `toml:"gcs_bucket"`
	GCSPrefix          string `toml:"gcs_prefix"`
	GCSCredentialsFile string `toml:"gcs_credentials_file"`
}

// TTS configures the narration speech collaborator.
type TTS struct {
	Backend           string  `toml:"backend"`
	Endpoint          string  `toml:"endpoint"`
	APIKey            string  `toml:"api_key"`
	WordsPerSecond    float64 `toml:"words_per_second"`
	SampleRate        int     `toml:"sample_rate"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Encoder configures the external media encoder.
type Encoder struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ScratchDir     string `toml:"scratch_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for slidecast.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Ingest: upload limits, slide defaults, thumbnails
//   - Timeline: resolution, frame rate, aspect ratio
//   - Render: worker pool, leases, retries, retention
//   - Queue: sqlite or redis broker
//   - Storage: local disk or Google Cloud Storage
//   - TTS: silence or HTTP speech endpoint
//   - Encoder: ffmpeg binary and timeouts
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Ingest   Ingest   `toml:"ingest"`
	Timeline Timeline `toml:"timeline"`
	Render   Render   `toml:"render"`
	Queue    Queue    `toml:"queue"`
	Storage  Storage  `toml:"storage"`
	TTS      TTS      `toml:"tts"`
	Encoder  Encoder  `toml:"encoder"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("slidecast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Encoder.ScratchDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath returns the SQLite database holding render jobs and timelines.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// QueueDBPath returns the SQLite database used by the sqlite queue broker.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "slidecastd.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "slidecastd.pid")
}

// LeaseDuration returns the render lease length.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Render.LeaseSeconds) * time.Second
}

// HeartbeatInterval returns how often workers extend their lease.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Render.HeartbeatInterval) * time.Second
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Ingest.MaxUploadMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.TTS.APIKey != "" {
		redacted.TTS.APIKey = "***"
	}
	if redacted.Queue.RedisPassword != "" {
		redacted.Queue.RedisPassword = "***"
	}
	return toml.Marshal(redacted)
}

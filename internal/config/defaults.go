package config

const (
	defaultConfigPath                = "~/.config/slidecast/config.toml"
	defaultDataDir                   = "~/.local/share/slidecast"
	defaultLogDir                    = "~/.local/share/slidecast/logs"
	defaultStorageDir                = "~/.local/share/slidecast/artifacts"
	defaultScratchDir                = "~/.local/share/slidecast/scratch"
	defaultAPIBind                   = "127.0.0.1:7590"
	defaultMaxUploadMiB              = 100
	defaultMaxPartMiB                = 64
	defaultMaxTotalMiB               = 512
	defaultMaxParts                  = 10000
	defaultBatchSize                 = 10
	defaultDurationSeconds           = 5.0
	defaultTransitionType            = "auto"
	defaultTransitionDurationSeconds = 0.5
	defaultThumbnailWidth            = 320
	defaultResolution                = "1920x1080"
	defaultFrameRate                 = 30
	defaultAspectRatio               = "16:9"
	defaultWorkerCount               = 2
	defaultMaxAttempts               = 3
	defaultLeaseSeconds              = 120
	defaultHeartbeatInterval         = 15
	defaultPollInterval              = 2
	defaultRetryBackoffSeconds       = 10
	defaultRetryBackoffMaxSeconds    = 300
	defaultWatchdogInterval          = 30
	defaultOrphanTimeoutSeconds      = 600
	defaultRetentionDays             = 30
	defaultRetentionSchedule         = "@daily"
	defaultTTSConcurrency            = 4
	defaultVoiceID                   = "default"
	defaultRedisPrefix               = "slidecast"
	defaultWordsPerSecond            = 2.5
	defaultSampleRate                = 22050
	defaultTTSTimeoutSeconds         = 60
	defaultEncoderBinary             = "ffmpeg"
	defaultEncoderTimeoutSeconds     = 3600
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Queue broker back-ends.
const (
	QueueSQLite = "sqlite"
	QueueRedis  = "redis"
)

// Storage back-ends.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// TTS back-ends.
const (
	TTSSilence = "silence"
	TTSHTTP    = "http"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Ingest: Ingest{
			MaxUploadMiB:              defaultMaxUploadMiB,
			MaxPartMiB:                defaultMaxPartMiB,
			MaxTotalMiB:               defaultMaxTotalMiB,
			MaxParts:                  defaultMaxParts,
			BatchSize:                 defaultBatchSize,
			DefaultDurationSeconds:    defaultDurationSeconds,
			TransitionType:            defaultTransitionType,
			TransitionDurationSeconds: defaultTransitionDurationSeconds,
			Thumbnails:                true,
			ThumbnailWidth:            defaultThumbnailWidth,
		},
		Timeline: Timeline{
			Resolution:  defaultResolution,
			FrameRate:   defaultFrameRate,
			AspectRatio: defaultAspectRatio,
		},
		Render: Render{
			WorkerCount:            defaultWorkerCount,
			MaxAttempts:            defaultMaxAttempts,
			LeaseSeconds:           defaultLeaseSeconds,
			HeartbeatInterval:      defaultHeartbeatInterval,
			PollInterval:           defaultPollInterval,
			RetryBackoffSeconds:    defaultRetryBackoffSeconds,
			RetryBackoffMaxSeconds: defaultRetryBackoffMaxSeconds,
			WatchdogInterval:       defaultWatchdogInterval,
			OrphanTimeoutSeconds:   defaultOrphanTimeoutSeconds,
			RetentionDays:          defaultRetentionDays,
			RetentionSchedule:      defaultRetentionSchedule,
			TTSConcurrency:         defaultTTSConcurrency,
			VoiceID:                defaultVoiceID,
		},
		Queue: Queue{
			Backend:     QueueSQLite,
			RedisPrefix: defaultRedisPrefix,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			LocalDir: defaultStorageDir,
		},
		TTS: TTS{
			Backend:        TTSSilence,
			WordsPerSecond: defaultWordsPerSecond,
			SampleRate:     defaultSampleRate,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		Encoder: Encoder{
			Binary:         defaultEncoderBinary,
			TimeoutSeconds: defaultEncoderTimeoutSeconds,
			ScratchDir:     defaultScratchDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

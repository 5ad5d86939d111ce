package config

const (
	defaultDataDir            = "~/.local/share/storyreel"
	defaultStagingDir         = "~/.local/share/storyreel/staging"
	defaultLogDir             = "~/.local/share/storyreel/logs"
	defaultOriginsFile        = "~/.config/storyreel/origins.yaml"
	defaultUserAgent          = "storyreel/0.1"
	defaultFetchLimit         = 10
	defaultMinScore           = 100
	defaultMinWordCount       = 300
	defaultSourceTimeout      = 30
	defaultRewriteBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultRewriteTimeout     = 60
	defaultSpeechVoice        = "en-US-ChristopherNeural"
	defaultSpeechTimeout      = 120
	defaultFFmpegBinary       = "ffmpeg"
	defaultRenderWidth        = 720
	defaultRenderHeight       = 1280
	defaultStorageTimeout     = 300
	defaultDailyUploadLimit   = 6
	defaultPublishTimeout     = 600
	defaultWordsPerMinute     = 150
	defaultMaxDurationSeconds = 60
	defaultItemBatchSize      = 10
	defaultHeartbeatInterval  = 15
	defaultStaleRunThreshold  = 300
	defaultErrorRetryInterval = 10
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			OriginsFile:    defaultOriginsFile,
			UserAgent:      defaultUserAgent,
			FetchLimit:     defaultFetchLimit,
			MinScore:       defaultMinScore,
			MinWordCount:   defaultMinWordCount,
			RequestTimeout: defaultSourceTimeout,
		},
		Rewrite: Rewrite{
			TimeoutSeconds: defaultRewriteTimeout,
		},
		Speech: Speech{
			Voice:          defaultSpeechVoice,
			TimeoutSeconds: defaultSpeechTimeout,
		},
		Render: Render{
			FFmpegBinary: defaultFFmpegBinary,
			Width:        defaultRenderWidth,
			Height:       defaultRenderHeight,
		},
		Storage: Storage{
			TimeoutSeconds: defaultStorageTimeout,
			EvictLocal:     true,
		},
		Publish: Publish{
			DailyUploadLimit: defaultDailyUploadLimit,
			TimeoutSeconds:   defaultPublishTimeout,
		},
		Segmenter: Segmenter{
			WordsPerMinute:     defaultWordsPerMinute,
			MaxDurationSeconds: defaultMaxDurationSeconds,
		},
		Workflow: Workflow{
			ItemBatchSize:      defaultItemBatchSize,
			HeartbeatInterval:  defaultHeartbeatInterval,
			StaleRunThreshold:  defaultStaleRunThreshold,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Runs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultDataDir    = "~/.local/share/recast/data"
	defaultMediaDir   = "~/.local/share/recast/media"
	defaultLogDir     = "~/.local/share/recast/logs"
	defaultUploadsDir = "~/.local/share/recast/uploads"

	defaultTranscriberBaseURL = "http://127.0.0.1:8178"
	defaultTranscriberModel   = "base.en"
	defaultTranscriberTimeout = 300

	defaultNarratorBaseURL = "http://127.0.0.1:8188"
	defaultNarratorVoice   = "alloy"
	defaultNarratorTimeout = 300

	defaultQueuePollInterval       = 2
	defaultQueueErrorRetryInterval = 5
	defaultQueueMaxAttempts        = 3
	defaultRetryBaseDelaySeconds   = 5
	defaultRetryMaxDelaySeconds    = 300
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultRetainFinished          = 200
	defaultRetainAgeDays           = 7
	defaultSweepInterval           = 300

	defaultGatewayBind = "127.0.0.1:7806"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			MediaDir:   defaultMediaDir,
			LogDir:     defaultLogDir,
			UploadsDir: defaultUploadsDir,
		},
		Transcriber: Transcriber{
			BaseURL:        defaultTranscriberBaseURL,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Narrator: Narrator{
			BaseURL:        defaultNarratorBaseURL,
			Voice:          defaultNarratorVoice,
			TimeoutSeconds: defaultNarratorTimeout,
		},
		Tools: Tools{
			FFmpegBinary: "ffmpeg",
		},
		Queue: Queue{
			PollInterval:          defaultQueuePollInterval,
			ErrorRetryInterval:    defaultQueueErrorRetryInterval,
			MaxAttempts:           defaultQueueMaxAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			RetainFinished:        defaultRetainFinished,
			RetainAgeDays:         defaultRetainAgeDays,
			SweepInterval:         defaultSweepInterval,
		},
		Workers: Workers{
			ExtractAudio: 2,
			Transcribe:   2,
			AIProcess:    2,
			ApplyZoom:    1,
			Merge:        1,
		},
		Gateway: Gateway{
			Bind: defaultGatewayBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServices()
	c.normalizeQueue()
	c.normalizeWorkers()
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
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		c.Paths.MediaDir = defaultMediaDir
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadsDir) == "" {
		c.Paths.UploadsDir = defaultUploadsDir
	}
	if c.Paths.UploadsDir, err = expandPath(c.Paths.UploadsDir); err != nil {
		return fmt.Errorf("paths.uploads_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServices() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Transcriber.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcriber.BaseURL), "/")
	c.Narrator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Narrator.BaseURL), "/")
	if c.Transcriber.TimeoutSeconds <= 0 {
		c.Transcriber.TimeoutSeconds = defaultTranscriberTimeout
	}
	if c.Narrator.TimeoutSeconds <= 0 {
		c.Narrator.TimeoutSeconds = defaultNarratorTimeout
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultQueuePollInterval
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		c.Queue.ErrorRetryInterval = defaultQueueErrorRetryInterval
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
	if c.Queue.RetryBaseDelaySeconds <= 0 {
		c.Queue.RetryBaseDelaySeconds = defaultRetryBaseDelaySeconds
	}
	if c.Queue.RetryMaxDelaySeconds <= 0 {
		c.Queue.RetryMaxDelaySeconds = defaultRetryMaxDelaySeconds
	}
	if c.Queue.HeartbeatInterval <= 0 {
		c.Queue.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Queue.HeartbeatTimeout <= 0 {
		c.Queue.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Queue.RetainFinished <= 0 {
		c.Queue.RetainFinished = defaultRetainFinished
	}
	if c.Queue.RetainAgeDays <= 0 {
		c.Queue.RetainAgeDays = defaultRetainAgeDays
	}
	if c.Queue.SweepInterval <= 0 {
		c.Queue.SweepInterval = defaultSweepInterval
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.ExtractAudio <= 0 {
		c.Workers.ExtractAudio = 1
	}
	if c.Workers.Transcribe <= 0 {
		c.Workers.Transcribe = 1
	}
	if c.Workers.AIProcess <= 0 {
		c.Workers.AIProcess = 1
	}
	if c.Workers.ApplyZoom <= 0 {
		c.Workers.ApplyZoom = 1
	}
	if c.Workers.Merge <= 0 {
		c.Workers.Merge = 1
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

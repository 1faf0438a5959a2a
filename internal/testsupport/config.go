package testsupport

import (
	"path/filepath"
	"testing"

	"recast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.UploadsDir = filepath.Join(base, "uploads")
	cfg.Queue.PollInterval = 1
	cfg.Queue.RetryBaseDelaySeconds = 1
	cfg.Queue.RetryMaxDelaySeconds = 4

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithRedisAddr points the broadcast channel at the provided address.
func WithRedisAddr(addr string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Redis.Addr = addr
	}
}

// WithMaxAttempts overrides the job retry ceiling.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = attempts
	}
}

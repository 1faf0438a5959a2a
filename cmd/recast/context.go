package main

import (
	"fmt"

	"recast/internal/api"
	"recast/internal/config"
	"recast/internal/queue"
	"recast/internal/recording"
)

// commandContext lazily loads configuration and opens the stores commands
// operate on.
type commandContext struct {
	configFlag *string

	cfg *config.Config
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// openService opens the stores and returns the API service with a cleanup
// function. Commands call the cleanup in a defer.
func (c *commandContext) openService() (*api.Service, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := recording.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open recording store: %w", err)
	}
	queueStore, err := queue.Open(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("open job queue: %w", err)
	}

	cleanup := func() {
		_ = queueStore.Close()
		_ = store.Close()
	}
	return api.NewService(cfg, store, queueStore, nil), cleanup, nil
}

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"recast/internal/config"
	"recast/internal/daemon"
	"recast/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	logger.Info("worker daemon running",
		logging.String("data_dir", cfg.Paths.DataDir))

	<-ctx.Done()
	d.Stop()
	logger.Info("worker daemon stopped")
}

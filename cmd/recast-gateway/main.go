package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"recast/internal/config"
	"recast/internal/gateway"
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

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("create gateway", logging.Error(err))
		return
	}
	defer gw.Close()

	server := &http.Server{
		Addr:              cfg.Gateway.Bind,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := gw.Subscribe(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("status subscription ended", logging.Error(err))
			cancel()
		}
	}()

	go func() {
		logger.Info("gateway listening", logging.String("addr", cfg.Gateway.Bind))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server", logging.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", logging.Error(err))
	}
	logger.Info("gateway stopped")
}

// Package daemon assembles the worker process: stores, service clients,
// the pipeline manager, and the status publisher, under flock-based
// single-instance locking.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"recast/internal/aiprocess"
	"recast/internal/api"
	"recast/internal/config"
	"recast/internal/events"
	"recast/internal/extract"
	"recast/internal/logging"
	"recast/internal/media"
	"recast/internal/merge"
	"recast/internal/pipeline"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services/narrator"
	"recast/internal/services/transcriber"
	"recast/internal/stage"
	"recast/internal/transcribe"
	"recast/internal/zoomstage"
)

// Daemon coordinates the worker process lifecycle and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *recording.Store
	queue     *queue.Store
	publisher events.Publisher
	manager   *pipeline.Manager
	service   *api.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New opens the stores, connects the status publisher, and wires every
// pipeline stage. Startup is fail-fast: an unreachable dependency is
// reported here, not on the first job.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := recording.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open recording store: %w", err)
	}
	queueStore, err := queue.Open(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	publisher, err := events.NewPublisher(ctx, cfg)
	if err != nil {
		_ = queueStore.Close()
		_ = store.Close()
		return nil, fmt.Errorf("connect status publisher: %w", err)
	}

	manager, err := pipeline.NewManager(cfg, store, queueStore, publisher, logger,
		extract.New(cfg, store, media.NewAudioExtractor(cfg, logger), logger),
		transcribe.New(cfg, store, transcriber.New(cfg), logger),
		aiprocess.New(cfg, store, narrator.New(cfg), logger),
		zoomstage.New(cfg, store, media.NewZoomRenderer(cfg, logger), logger),
		merge.New(cfg, store, media.NewMuxer(cfg, logger), logger),
	)
	if err != nil {
		_ = publisher.Close()
		_ = queueStore.Close()
		_ = store.Close()
		return nil, fmt.Errorf("wire pipeline: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "recastd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		queue:     queueStore,
		publisher: publisher,
		manager:   manager,
		service:   api.NewService(cfg, store, queueStore, logger),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Service exposes the client-facing operations backed by this daemon's
// stores.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Start acquires the instance lock, verifies store connectivity, and
// launches the pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another recast daemon instance is already running")
	}

	if err := d.store.Ping(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recording store unavailable: %w", err)
	}
	if err := d.queue.Ping(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("job queue unavailable: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)

	for _, health := range d.manager.Health(ctx) {
		if !health.Ready {
			d.logger.Warn("stage not ready",
				logging.String(logging.FieldStage, string(health.Stage)),
				logging.String("detail", health.Detail),
			)
		}
	}

	d.logger.Info("recast daemon started",
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Health reports per-stage readiness.
func (d *Daemon) Health(ctx context.Context) []stage.Health {
	return d.manager.Health(ctx)
}

// Stop shuts down the pipeline and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("recast daemon stopped")
}

// Close stops the daemon and releases every held resource.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

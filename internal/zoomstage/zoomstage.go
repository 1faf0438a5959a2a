// Package zoomstage implements the zoom-effects stage. Zoom rendering is
// best-effort: a render failure degrades to the raw video instead of
// failing the recording.
package zoomstage

import (
	"context"
	"log/slog"
	"os/exec"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/media"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/stage"
)

// Applier renders click-driven zoom effects onto the raw recording.
type Applier struct {
	cfg      *config.Config
	store    *recording.Store
	renderer *media.ZoomRenderer
	logger   *slog.Logger
}

// New constructs the apply-zoom stage handler.
func New(cfg *config.Config, store *recording.Store, renderer *media.ZoomRenderer, logger *slog.Logger) *Applier {
	return &Applier{
		cfg:      cfg,
		store:    store,
		renderer: renderer,
		logger:   logging.NewComponentLogger(logger, "apply-zoom"),
	}
}

// Stage identifies the queue stage this handler consumes.
func (a *Applier) Stage() queue.Stage {
	return queue.StageApplyZoom
}

// Execute records a zoomed-video path for the recording. With no usable
// clicks the raw video is used directly; a render failure likewise falls
// back to the raw video rather than failing the stage.
func (a *Applier) Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error {
	if err := a.store.SetStep(ctx, rec.ID, recording.StepApplyingZoom); err != nil {
		return err
	}

	interactionEvents, err := recording.LoadEvents(rec.EventsPath)
	if err != nil {
		return err
	}
	clicks := recording.ClickEvents(interactionEvents)

	if len(clicks) == 0 {
		a.logger.Info("no click events, using raw video",
			logging.String(logging.FieldRecordingID, rec.ID),
		)
		return a.store.SetZoomedVideo(ctx, rec.ID, rec.VideoPath)
	}

	artifacts := stage.ArtifactsFor(a.cfg, rec.ID)
	if err := artifacts.EnsureDir(); err != nil {
		return err
	}
	zoomedPath := artifacts.ZoomedPath()

	if err := a.renderer.Render(ctx, rec.VideoPath, clicks, zoomedPath); err != nil {
		a.logger.Warn("zoom render failed, falling back to raw video",
			logging.String(logging.FieldRecordingID, rec.ID),
			logging.Error(err),
		)
		return a.store.SetZoomedVideo(ctx, rec.ID, rec.VideoPath)
	}

	a.logger.Info("zoom effects rendered",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.Int("click_count", len(clicks)),
	)
	return a.store.SetZoomedVideo(ctx, rec.ID, zoomedPath)
}

// HealthCheck reports whether ffmpeg is available.
func (a *Applier) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(a.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(queue.StageApplyZoom, "ffmpeg not found: "+err.Error())
	}
	return stage.Healthy(queue.StageApplyZoom)
}

// Package merge implements the final pipeline stage: muxing the zoomed
// video with the synthesized voiceover and completing the recording.
package merge

import (
	"context"
	"log/slog"
	"os/exec"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/media"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services"
	"recast/internal/stage"
)

// Merger produces the final deliverable video.
type Merger struct {
	cfg    *config.Config
	store  *recording.Store
	muxer  *media.Muxer
	logger *slog.Logger
}

// New constructs the merge stage handler.
func New(cfg *config.Config, store *recording.Store, muxer *media.Muxer, logger *slog.Logger) *Merger {
	return &Merger{
		cfg:    cfg,
		store:  store,
		muxer:  muxer,
		logger: logging.NewComponentLogger(logger, "merge"),
	}
}

// Stage identifies the queue stage this handler consumes.
func (m *Merger) Stage() queue.Stage {
	return queue.StageMerge
}

// Execute muxes the currently recorded zoomed-video path with the
// voiceover. The zoomed path may equal the raw video path after a zoom
// fallback; the mux input is always whatever the record says, never a
// derived guess. A missing voiceover promotes the zoomed video to final
// unchanged.
func (m *Merger) Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error {
	if err := m.store.SetStep(ctx, rec.ID, recording.StepMerging); err != nil {
		return err
	}

	if rec.ZoomedVideoPath == "" {
		return services.Wrap(services.ErrValidation, "merge", "mux", "zoomed video path missing", nil)
	}

	if rec.VoiceoverPath == "" {
		m.logger.Info("no voiceover, promoting zoomed video to final",
			logging.String(logging.FieldRecordingID, rec.ID),
		)
		return m.store.Complete(ctx, rec.ID, rec.ZoomedVideoPath)
	}

	artifacts := stage.ArtifactsFor(m.cfg, rec.ID)
	if err := artifacts.EnsureDir(); err != nil {
		return err
	}
	finalPath := artifacts.FinalPath()

	if err := m.muxer.Mux(ctx, rec.ZoomedVideoPath, rec.VoiceoverPath, finalPath); err != nil {
		return err
	}
	if err := m.store.Complete(ctx, rec.ID, finalPath); err != nil {
		return err
	}

	m.logger.Info("recording completed",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String("final_path", finalPath),
	)
	return nil
}

// HealthCheck reports whether ffmpeg is available.
func (m *Merger) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(m.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(queue.StageMerge, "ffmpeg not found: "+err.Error())
	}
	return stage.Healthy(queue.StageMerge)
}

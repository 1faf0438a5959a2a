// Package extract implements the first pipeline stage: pulling the audio
// track out of an uploaded recording.
package extract

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

// Extractor moves an uploaded recording into processing and extracts its
// audio for transcription.
type Extractor struct {
	cfg       *config.Config
	store     *recording.Store
	extractor *media.AudioExtractor
	logger    *slog.Logger
}

// New constructs the extract-audio stage handler.
func New(cfg *config.Config, store *recording.Store, extractor *media.AudioExtractor, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "extract-audio"),
	}
}

// Stage identifies the queue stage this handler consumes.
func (e *Extractor) Stage() queue.Stage {
	return queue.StageExtractAudio
}

// Execute transitions the recording into processing and writes the audio
// artifact. Re-delivery after a crash re-runs the extraction; the output
// write is atomic so a partial earlier run cannot leak through.
func (e *Extractor) Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error {
	if err := e.store.StartProcessing(ctx, rec.ID); err != nil {
		return err
	}

	artifacts := stage.ArtifactsFor(e.cfg, rec.ID)
	if err := artifacts.EnsureDir(); err != nil {
		return err
	}

	audioPath := artifacts.AudioPath()
	if err := e.extractor.Extract(ctx, rec.VideoPath, audioPath); err != nil {
		return err
	}

	if err := e.store.SetAudio(ctx, rec.ID, audioPath); err != nil {
		return err
	}

	e.logger.Info("audio extracted",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String("audio_path", audioPath),
	)
	return nil
}

// HealthCheck reports whether ffmpeg is available.
func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(queue.StageExtractAudio, "ffmpeg not found: "+err.Error())
	}
	return stage.Healthy(queue.StageExtractAudio)
}

// Package transcribe implements the speech-to-text stage. It is the pause
// point of the automatic pipeline: a successful run parks the recording in
// draft so the user can review the transcript before AI processing.
package transcribe

import (
	"context"
	"log/slog"
	"os"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services/transcriber"
	"recast/internal/stage"
)

// Transcriber turns the extracted audio into a transcript and parks the
// recording as a reviewable draft.
type Transcriber struct {
	cfg    *config.Config
	store  *recording.Store
	client *transcriber.Client
	logger *slog.Logger
}

// New constructs the transcribe stage handler.
func New(cfg *config.Config, store *recording.Store, client *transcriber.Client, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

// Stage identifies the queue stage this handler consumes.
func (t *Transcriber) Stage() queue.Stage {
	return queue.StageTranscribe
}

// Execute transcribes the stored audio artifact. An empty transcript is a
// valid result; silent recordings still reach draft.
func (t *Transcriber) Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error {
	if err := t.store.SetStep(ctx, rec.ID, recording.StepTranscribing); err != nil {
		return err
	}

	text, err := t.client.Transcribe(ctx, rec.AudioPath, "")
	if err != nil {
		return err
	}

	artifacts := stage.ArtifactsFor(t.cfg, rec.ID)
	if err := artifacts.EnsureDir(); err != nil {
		return err
	}
	transcriptPath := artifacts.TranscriptPath()
	if err := os.WriteFile(transcriptPath, []byte(text), 0o644); err != nil {
		return err
	}

	if err := t.store.SetTranscript(ctx, rec.ID, text, transcriptPath); err != nil {
		return err
	}
	if err := t.store.MarkDraftReady(ctx, rec.ID); err != nil {
		return err
	}

	t.logger.Info("transcript ready for review",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.Int("transcript_chars", len(text)),
	)
	return nil
}

// HealthCheck reports whether the transcription service is configured.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg.Transcriber.BaseURL == "" {
		return stage.Unhealthy(queue.StageTranscribe, "transcriber base URL not configured")
	}
	return stage.Healthy(queue.StageTranscribe)
}

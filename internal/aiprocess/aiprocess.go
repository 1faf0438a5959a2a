// Package aiprocess implements the script-cleanup and voice-synthesis
// stage. It is only ever entered on explicit user request, never as an
// automatic continuation of transcription.
package aiprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/queue"
	"recast/internal/recording"
	"recast/internal/services/narrator"
	"recast/internal/stage"
)

// Processor cleans up the reviewed transcript and synthesizes the voiceover.
type Processor struct {
	cfg    *config.Config
	store  *recording.Store
	client *narrator.Client
	logger *slog.Logger
}

// New constructs the AI-processing stage handler.
func New(cfg *config.Config, store *recording.Store, client *narrator.Client, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logging.NewComponentLogger(logger, "ai-process"),
	}
}

// Stage identifies the queue stage this handler consumes.
func (p *Processor) Stage() queue.Stage {
	return queue.StageAIProcess
}

// Execute produces the cleaned script and voiceover. An empty transcript
// skips the external call entirely: the raw audio becomes the voiceover
// placeholder and the script is a fixed sentinel, so silent recordings
// still flow through the rest of the pipeline.
func (p *Processor) Execute(ctx context.Context, rec *recording.Recording, job *queue.Job) error {
	if err := p.store.SetStep(ctx, rec.ID, recording.StepAIProcessing); err != nil {
		return err
	}

	artifacts := stage.ArtifactsFor(p.cfg, rec.ID)
	if err := artifacts.EnsureDir(); err != nil {
		return err
	}
	voiceoverPath := artifacts.VoiceoverPath()

	if strings.TrimSpace(rec.Transcript) == "" {
		// No audio artifact (re-entry on a recording that failed before
		// extraction) means no placeholder either; merge promotes the
		// zoomed video when the voiceover path is empty.
		if rec.AudioPath == "" {
			voiceoverPath = ""
		} else if err := copyFile(rec.AudioPath, voiceoverPath); err != nil {
			return fmt.Errorf("copy placeholder voiceover: %w", err)
		}
		if err := p.store.SetNarration(ctx, rec.ID, recording.EmptyTranscriptScript, voiceoverPath); err != nil {
			return err
		}
		p.logger.Info("empty transcript, skipped narration",
			logging.String(logging.FieldRecordingID, rec.ID),
		)
		return nil
	}

	interactionEvents, err := recording.LoadEvents(rec.EventsPath)
	if err != nil {
		return err
	}

	result, err := p.client.Narrate(ctx, narrator.Request{
		Transcript:     rec.Transcript,
		Events:         interactionEvents,
		TargetLanguage: rec.TargetLanguage,
	}, voiceoverPath)
	if err != nil {
		return err
	}

	if err := p.store.SetNarration(ctx, rec.ID, result.CleanedScript, result.VoiceoverPath); err != nil {
		return err
	}

	p.logger.Info("narration synthesized",
		logging.String(logging.FieldRecordingID, rec.ID),
		logging.String("language", rec.TargetLanguage),
		logging.Int("script_chars", len(result.CleanedScript)),
	)
	return nil
}

// HealthCheck reports whether the narration service is configured.
func (p *Processor) HealthCheck(ctx context.Context) stage.Health {
	if p.cfg.Narrator.BaseURL == "" {
		return stage.Unhealthy(queue.StageAIProcess, "narrator base URL not configured")
	}
	return stage.Healthy(queue.StageAIProcess)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/services"
)

// AudioExtractor pulls the audio track out of a recording as 16 kHz mono WAV,
// the input format the transcription service expects.
type AudioExtractor struct {
	binary string
	logger *slog.Logger
	run    CommandRunner
}

// NewAudioExtractor constructs an extractor using the configured ffmpeg binary.
func NewAudioExtractor(cfg *config.Config, logger *slog.Logger) *AudioExtractor {
	return &AudioExtractor{
		binary: cfg.FFmpegBinary(),
		logger: logging.NewComponentLogger(logger, "audio-extractor"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (e *AudioExtractor) WithCommandRunner(r CommandRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

// Extract writes the audio track of videoPath to outputPath. The write is
// atomic: ffmpeg targets a temp file that is renamed on success.
func (e *AudioExtractor) Extract(ctx context.Context, videoPath, outputPath string) error {
	if strings.TrimSpace(videoPath) == "" {
		return services.Wrap(services.ErrValidation, "extract-audio", "extract", "video path is required", nil)
	}
	if strings.TrimSpace(outputPath) == "" {
		return services.Wrap(services.ErrValidation, "extract-audio", "extract", "output path is required", nil)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return services.Wrap(services.ErrRejectedInput, "extract-audio", "extract", "source video not found", err)
	}

	tmpPath := tempSibling(outputPath)
	args := buildExtractArgs(videoPath, tmpPath)

	if e.logger != nil {
		e.logger.Debug("executing ffmpeg audio extraction",
			logging.String("video_path", videoPath),
			logging.String("output_path", outputPath),
		)
	}

	if err := e.run(ctx, e.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "extract-audio", "ffmpeg", "audio extraction failed", err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "extract-audio", "ffmpeg", "ffmpeg did not produce output", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// buildExtractArgs constructs the ffmpeg argument list for audio extraction.
func buildExtractArgs(videoPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outputPath,
	}
}

func tempSibling(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, "."+base+".tmp")
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/services"
)

// Muxer combines the zoomed video track with the synthesized voiceover into
// the final deliverable.
type Muxer struct {
	binary string
	logger *slog.Logger
	run    CommandRunner
}

// NewMuxer constructs a muxer using the configured ffmpeg binary.
func NewMuxer(cfg *config.Config, logger *slog.Logger) *Muxer {
	return &Muxer{
		binary: cfg.FFmpegBinary(),
		logger: logging.NewComponentLogger(logger, "muxer"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (m *Muxer) WithCommandRunner(r CommandRunner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mux writes outputPath carrying videoPath's video track and audioPath's
// audio track. The video is stream-copied; only the voiceover is encoded.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if strings.TrimSpace(videoPath) == "" {
		return services.Wrap(services.ErrValidation, "merge", "mux", "video path is required", nil)
	}
	if strings.TrimSpace(audioPath) == "" {
		return services.Wrap(services.ErrValidation, "merge", "mux", "audio path is required", nil)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return services.Wrap(services.ErrRejectedInput, "merge", "mux", "video input not found", err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return services.Wrap(services.ErrRejectedInput, "merge", "mux", "audio input not found", err)
	}

	tmpPath := tempSibling(outputPath)
	args := buildMuxArgs(videoPath, audioPath, tmpPath)

	if m.logger != nil {
		m.logger.Debug("executing ffmpeg mux",
			logging.String("video_path", videoPath),
			logging.String("audio_path", audioPath),
			logging.String("output_path", outputPath),
		)
	}

	if err := m.run(ctx, m.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "merge", "ffmpeg", "mux failed", err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "merge", "ffmpeg", "ffmpeg did not produce output", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// buildMuxArgs constructs the ffmpeg argument list for the final mux. The
// voiceover replaces the recording's original audio; -shortest trims the
// output to the shorter of the two tracks.
func buildMuxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}
}

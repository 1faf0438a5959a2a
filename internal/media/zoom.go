package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/recording"
	"recast/internal/services"
)

const (
	// zoomFactor is how far the camera pushes in on a click.
	zoomFactor = 1.5
	// zoomHoldMillis is how long one zoom effect lasts, ramp included.
	zoomHoldMillis = 2000
	// zoomFrameRate drives the zoompan expression clock.
	zoomFrameRate = 30
)

// ZoomRenderer renders click-driven zoom effects onto a recording with
// ffmpeg's zoompan filter. Clicks are mapped from viewport coordinates to
// output coordinates inside the filter expression.
type ZoomRenderer struct {
	binary string
	logger *slog.Logger
	run    CommandRunner
}

// NewZoomRenderer constructs a renderer using the configured ffmpeg binary.
func NewZoomRenderer(cfg *config.Config, logger *slog.Logger) *ZoomRenderer {
	return &ZoomRenderer{
		binary: cfg.FFmpegBinary(),
		logger: logging.NewComponentLogger(logger, "zoom-renderer"),
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (z *ZoomRenderer) WithCommandRunner(r CommandRunner) {
	if z != nil && r != nil {
		z.run = r
	}
}

// Render produces outputPath from videoPath with a zoom effect per click.
// Callers decide the fallback policy; Render itself reports failure.
func (z *ZoomRenderer) Render(ctx context.Context, videoPath string, clicks []recording.InteractionEvent, outputPath string) error {
	if strings.TrimSpace(videoPath) == "" {
		return services.Wrap(services.ErrValidation, "apply-zoom", "render", "video path is required", nil)
	}
	if len(clicks) == 0 {
		return services.Wrap(services.ErrValidation, "apply-zoom", "render", "no click events to render", nil)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return services.Wrap(services.ErrRejectedInput, "apply-zoom", "render", "source video not found", err)
	}

	tmpPath := tempSibling(outputPath)
	args := buildZoomArgs(videoPath, clicks, tmpPath)

	if z.logger != nil {
		z.logger.Debug("executing ffmpeg zoom render",
			logging.String("video_path", videoPath),
			logging.Int("click_count", len(clicks)),
		)
	}

	if err := z.run(ctx, z.binary, args...); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "apply-zoom", "ffmpeg", "zoom render failed", err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "apply-zoom", "ffmpeg", "ffmpeg did not produce output", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

// buildZoomArgs constructs the ffmpeg argument list for the zoom render.
func buildZoomArgs(videoPath string, clicks []recording.InteractionEvent, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-filter_complex", buildZoomFilter(clicks),
		"-map", "[out]",
		"-map", "0:a?",
		"-c:a", "copy",
		outputPath,
	}
}

// buildZoomFilter composes one zoompan expression covering every click. The
// zoom ramps in over the first quarter of the hold window, holds, and snaps
// back to 1.0 when the window ends. Click coordinates are normalized against
// the recorded viewport so the pan target survives resolution differences.
func buildZoomFilter(clicks []recording.InteractionEvent) string {
	ordered := make([]recording.InteractionEvent, len(clicks))
	copy(ordered, clicks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	zoomExpr := "1"
	xExpr := "iw/2-(iw/zoom/2)"
	yExpr := "ih/2-(ih/zoom/2)"

	// Later clicks are composed outermost so an overlapping window belongs
	// to the most recent click.
	for _, click := range ordered {
		start := float64(click.Timestamp) / 1000.0
		end := start + zoomHoldMillis/1000.0
		ramp := (zoomHoldMillis / 1000.0) / 4.0

		window := fmt.Sprintf("between(time,%.3f,%.3f)", start, end)
		zoomIn := fmt.Sprintf("min(%.2f,1+(%.2f-1)*(time-%.3f)/%.3f)", zoomFactor, zoomFactor, start, ramp)
		zoomExpr = fmt.Sprintf("if(%s,%s,%s)", window, zoomIn, zoomExpr)

		fx, fy := 0.5, 0.5
		if click.Viewport != nil && click.Viewport.Width > 0 && click.Viewport.Height > 0 && click.Coordinates != nil {
			fx = click.Coordinates.X / click.Viewport.Width
			fy = click.Coordinates.Y / click.Viewport.Height
		}
		xExpr = fmt.Sprintf("if(%s,%s,%s)", window, fmt.Sprintf("iw*%.4f-(iw/zoom/2)", fx), xExpr)
		yExpr = fmt.Sprintf("if(%s,%s,%s)", window, fmt.Sprintf("ih*%.4f-(ih/zoom/2)", fy), yExpr)
	}

	return fmt.Sprintf(
		"[0:v]zoompan=z='%s':x='%s':y='%s':d=1:fps=%d:s=hd1080[v]",
		zoomExpr, xExpr, yExpr, zoomFrameRate,
	) + ";[v]format=yuv420p[out]"
}

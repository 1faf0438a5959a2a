package stage

import (
	"fmt"
	"os"
	"path/filepath"

	"recast/internal/config"
)

// Artifacts resolves where a recording's derived files live. Every stage
// writes into the same per-recording directory under the media root.
type Artifacts struct {
	Dir string
}

// ArtifactsFor returns the artifact layout for one recording.
func ArtifactsFor(cfg *config.Config, recordingID string) Artifacts {
	return Artifacts{Dir: filepath.Join(cfg.Paths.MediaDir, recordingID)}
}

// EnsureDir creates the per-recording artifact directory.
func (a Artifacts) EnsureDir() error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure artifact dir: %w", err)
	}
	return nil
}

func (a Artifacts) AudioPath() string      { return filepath.Join(a.Dir, "audio.wav") }
func (a Artifacts) TranscriptPath() string { return filepath.Join(a.Dir, "transcript.txt") }
func (a Artifacts) VoiceoverPath() string  { return filepath.Join(a.Dir, "voiceover.mp3") }
func (a Artifacts) ZoomedPath() string     { return filepath.Join(a.Dir, "zoomed.mp4") }
func (a Artifacts) FinalPath() string      { return filepath.Join(a.Dir, "final.mp4") }

package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"recast/internal/recording"
)

// WriteFile writes content into dir under name and returns the full path.
func WriteFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteVideoFixture writes a placeholder video file.
func WriteVideoFixture(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, []byte("fixture-video-bytes"))
}

// WriteEventsFixture serializes interaction events into a JSON events file.
func WriteEventsFixture(t testing.TB, dir, name string, events []recording.InteractionEvent) string {
	t.Helper()

	data, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal events: %v", err)
	}
	return WriteFile(t, dir, name, data)
}

// ClickEvent builds a pointer-click interaction event for fixtures.
func ClickEvent(timestamp int64, x, y float64) recording.InteractionEvent {
	return recording.InteractionEvent{
		Type:        "click",
		Timestamp:   timestamp,
		Coordinates: &recording.Coordinates{X: x, Y: y},
		Viewport:    &recording.Viewport{Width: 1920, Height: 1080},
	}
}

package testsupport

import (
	"context"
	"testing"

	"recast/internal/config"
	"recast/internal/queue"
	"recast/internal/recording"
)

// MustOpenRecordingStore opens a recording.Store for tests and registers cleanup.
func MustOpenRecordingStore(t testing.TB, cfg *config.Config) *recording.Store {
	t.Helper()

	store, err := recording.Open(cfg)
	if err != nil {
		t.Fatalf("recording.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenQueue opens a queue.Store for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecording creates an uploaded recording for tests using the provided store.
func NewRecording(t testing.TB, store *recording.Store, id, videoPath, eventsPath string) *recording.Recording {
	t.Helper()

	rec, err := store.Create(context.Background(), id, videoPath, eventsPath, "")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}

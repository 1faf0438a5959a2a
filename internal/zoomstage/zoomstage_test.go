package zoomstage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"recast/internal/media"
	"recast/internal/recording"
	"recast/internal/testsupport"
	"recast/internal/zoomstage"
)

func seedForZoom(t *testing.T, store *recording.Store, id, videoPath, eventsPath string) *recording.Recording {
	t.Helper()
	ctx := context.Background()
	testsupport.NewRecording(t, store, id, videoPath, eventsPath)
	if err := store.StartProcessing(ctx, id); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	rec, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return rec
}

func TestExecuteRendersZoomForClicks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	dir := t.TempDir()
	videoPath := testsupport.WriteVideoFixture(t, dir, "rec-1.webm")
	eventsPath := testsupport.WriteEventsFixture(t, dir, "events.json", []recording.InteractionEvent{
		testsupport.ClickEvent(1000, 10, 20),
	})
	rec := seedForZoom(t, store, "rec-1", videoPath, eventsPath)

	renderer := media.NewZoomRenderer(cfg, nil)
	renderer.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		out := args[len(args)-1]
		testsupport.WriteFile(t, filepath.Dir(out), filepath.Base(out), []byte("mp4"))
		return nil
	})

	handler := zoomstage.New(cfg, store, renderer, nil)
	if err := handler.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	updated, err := store.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.ZoomedVideoPath == "" || updated.ZoomedVideoPath == videoPath {
		t.Fatalf("expected rendered zoom path distinct from raw video: %q", updated.ZoomedVideoPath)
	}
	if updated.CurrentStep != recording.StepApplyingZoom {
		t.Fatalf("unexpected step: %s", updated.CurrentStep)
	}
}

func TestExecuteNoClicksUsesRawVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	dir := t.TempDir()
	videoPath := testsupport.WriteVideoFixture(t, dir, "rec-2.webm")
	eventsPath := testsupport.WriteEventsFixture(t, dir, "events.json", []recording.InteractionEvent{
		{Type: "scroll", Timestamp: 500},
		{Type: "keypress", Timestamp: 900, Key: "Tab"},
	})
	rec := seedForZoom(t, store, "rec-2", videoPath, eventsPath)

	renderer := media.NewZoomRenderer(cfg, nil)
	renderer.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("renderer must not run without clicks")
		return nil
	})

	handler := zoomstage.New(cfg, store, renderer, nil)
	if err := handler.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	updated, err := store.GetByID(context.Background(), "rec-2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.ZoomedVideoPath != videoPath {
		t.Fatalf("expected raw video path, got %q", updated.ZoomedVideoPath)
	}
}

func TestExecuteMissingEventsFileUsesRawVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	dir := t.TempDir()
	videoPath := testsupport.WriteVideoFixture(t, dir, "rec-3.webm")
	rec := seedForZoom(t, store, "rec-3", videoPath, "")

	handler := zoomstage.New(cfg, store, media.NewZoomRenderer(cfg, nil), nil)
	if err := handler.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	updated, err := store.GetByID(context.Background(), "rec-3")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.ZoomedVideoPath != videoPath {
		t.Fatalf("expected raw video path, got %q", updated.ZoomedVideoPath)
	}
}

func TestExecuteRenderFailureFallsBackToRawVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	dir := t.TempDir()
	videoPath := testsupport.WriteVideoFixture(t, dir, "rec-4.webm")
	eventsPath := testsupport.WriteEventsFixture(t, dir, "events.json", []recording.InteractionEvent{
		testsupport.ClickEvent(1000, 10, 20),
	})
	rec := seedForZoom(t, store, "rec-4", videoPath, eventsPath)

	renderer := media.NewZoomRenderer(cfg, nil)
	renderer.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("filter graph error")
	})

	handler := zoomstage.New(cfg, store, renderer, nil)
	if err := handler.Execute(context.Background(), rec, nil); err != nil {
		t.Fatalf("render failure must not fail the stage: %v", err)
	}

	updated, err := store.GetByID(context.Background(), "rec-4")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.ZoomedVideoPath != videoPath {
		t.Fatalf("expected raw video fallback, got %q", updated.ZoomedVideoPath)
	}
}

package recording_test

import (
	"context"
	"errors"
	"testing"

	"recast/internal/recording"
	"recast/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	rec, err := store.Create(ctx, "rec-1", "/videos/rec-1.webm", "/videos/rec-1.events.json", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.Status != recording.StatusUploaded {
		t.Fatalf("expected uploaded status, got %s", rec.Status)
	}
	if rec.TargetLanguage != recording.DefaultTargetLanguage {
		t.Fatalf("expected default language, got %q", rec.TargetLanguage)
	}

	fetched, err := store.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.VideoPath != "/videos/rec-1.webm" {
		t.Fatalf("unexpected video path: %s", fetched.VideoPath)
	}
}

func TestCreateRequiresIDAndVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	if _, err := store.Create(ctx, "", "/videos/a.webm", "", ""); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := store.Create(ctx, "rec-2", "", "", ""); err == nil {
		t.Fatal("expected error for missing video path")
	}
}

func TestGetByIDMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	_, err := store.GetByID(context.Background(), "nope")
	if !errors.Is(err, recording.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessingLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-3", "/v/rec-3.webm", "")

	if err := store.StartProcessing(ctx, "rec-3"); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-3")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != recording.StatusProcessing || rec.CurrentStep != recording.StepExtractingAudio {
		t.Fatalf("unexpected state after start: %s/%s", rec.Status, rec.CurrentStep)
	}
	if rec.ProcessingStartedAt == nil {
		t.Fatal("expected processing start timestamp")
	}

	if err := store.SetAudio(ctx, "rec-3", "/v/rec-3.wav"); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	if err := store.SetTranscript(ctx, "rec-3", "hello world", "/v/rec-3.txt"); err != nil {
		t.Fatalf("SetTranscript failed: %v", err)
	}
	if err := store.MarkDraftReady(ctx, "rec-3"); err != nil {
		t.Fatalf("MarkDraftReady failed: %v", err)
	}

	rec, err = store.GetByID(ctx, "rec-3")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != recording.StatusDraftReady || rec.CurrentStep != recording.StepCompleted {
		t.Fatalf("unexpected draft state: %s/%s", rec.Status, rec.CurrentStep)
	}
	if rec.AudioPath != "/v/rec-3.wav" || rec.Transcript != "hello world" {
		t.Fatalf("unexpected artifacts: %#v", rec)
	}
}

func TestCompleteRequiresFinalPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-4", "/v/rec-4.webm", "")

	if err := store.Complete(ctx, "rec-4", ""); err == nil {
		t.Fatal("expected error completing without final path")
	}
	if err := store.Complete(ctx, "rec-4", "/v/rec-4.final.mp4"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	rec, err := store.GetByID(ctx, "rec-4")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != recording.StatusCompleted || rec.FinalVideoPath == "" {
		t.Fatalf("unexpected completed state: %#v", rec)
	}
	if rec.ProcessingCompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
}

func TestMarkFailedSetsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-5", "/v/rec-5.webm", "")

	if err := store.MarkFailed(ctx, "rec-5", "extraction blew up"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-5")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != recording.StatusFailed || rec.CurrentStep != recording.StepFailed {
		t.Fatalf("unexpected failed state: %s/%s", rec.Status, rec.CurrentStep)
	}
	if rec.ErrorMessage != "extraction blew up" {
		t.Fatalf("unexpected error message: %q", rec.ErrorMessage)
	}
}

func TestReprocessPreservesUpstreamArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-6", "/v/rec-6.webm", "")
	if err := store.StartProcessing(ctx, "rec-6"); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := store.SetAudio(ctx, "rec-6", "/v/rec-6.wav"); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	if err := store.SetTranscript(ctx, "rec-6", "script", "/v/rec-6.txt"); err != nil {
		t.Fatalf("SetTranscript failed: %v", err)
	}
	if err := store.MarkFailed(ctx, "rec-6", "narrator down"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	if err := store.Reprocess(ctx, "rec-6", "de"); err != nil {
		t.Fatalf("Reprocess failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-6")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != recording.StatusProcessing || rec.CurrentStep != recording.StepAIProcessing {
		t.Fatalf("unexpected reprocess state: %s/%s", rec.Status, rec.CurrentStep)
	}
	if rec.TargetLanguage != "de" {
		t.Fatalf("unexpected language: %q", rec.TargetLanguage)
	}
	if rec.ErrorMessage != "" {
		t.Fatalf("expected cleared error, got %q", rec.ErrorMessage)
	}
	if rec.AudioPath != "/v/rec-6.wav" || rec.TranscriptPath != "/v/rec-6.txt" {
		t.Fatalf("upstream artifacts must survive re-entry: %#v", rec)
	}

	// Re-entering without an explicit language keeps the prior choice
	// instead of resetting to the default.
	if err := store.Reprocess(ctx, "rec-6", ""); err != nil {
		t.Fatalf("Reprocess failed: %v", err)
	}
	rec, err = store.GetByID(ctx, "rec-6")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.TargetLanguage != "de" {
		t.Fatalf("empty language must keep the current choice, got %q", rec.TargetLanguage)
	}
}

func TestTargetedUpdatesDoNotClobber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-7", "/v/rec-7.webm", "/v/rec-7.events.json")

	if err := store.SetAudio(ctx, "rec-7", "/v/rec-7.wav"); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	if err := store.SetNarration(ctx, "rec-7", "cleaned", "/v/rec-7.voice.mp3"); err != nil {
		t.Fatalf("SetNarration failed: %v", err)
	}
	if err := store.SetZoomedVideo(ctx, "rec-7", "/v/rec-7.zoom.mp4"); err != nil {
		t.Fatalf("SetZoomedVideo failed: %v", err)
	}

	rec, err := store.GetByID(ctx, "rec-7")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.AudioPath != "/v/rec-7.wav" || rec.VoiceoverPath != "/v/rec-7.voice.mp3" || rec.ZoomedVideoPath != "/v/rec-7.zoom.mp4" {
		t.Fatalf("targeted updates lost fields: %#v", rec)
	}
	if rec.EventsPath != "/v/rec-7.events.json" {
		t.Fatalf("events path clobbered: %q", rec.EventsPath)
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	testsupport.NewRecording(t, store, "rec-a", "/v/a.webm", "")
	testsupport.NewRecording(t, store, "rec-b", "/v/b.webm", "")
	if err := store.MarkFailed(ctx, "rec-b", "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[recording.StatusUploaded] != 1 || stats[recording.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

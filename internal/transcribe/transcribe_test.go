package transcribe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"recast/internal/recording"
	"recast/internal/services/transcriber"
	"recast/internal/testsupport"
	"recast/internal/transcribe"
)

func TestExecuteStoresTranscriptAndParksDraft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"first click export then wait"}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	dir := t.TempDir()
	audioPath := testsupport.WriteFile(t, dir, "audio.wav", []byte("wav"))
	testsupport.NewRecording(t, store, "rec-1", "/v/rec-1.webm", "")
	if err := store.StartProcessing(ctx, "rec-1"); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := store.SetAudio(ctx, "rec-1", audioPath); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	handler := transcribe.New(cfg, store, transcriber.New(cfg), nil)
	if err := handler.Execute(ctx, rec, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	updated, err := store.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != recording.StatusDraftReady {
		t.Fatalf("expected draft ready, got %s", updated.Status)
	}
	if updated.Transcript != "first click export then wait" {
		t.Fatalf("unexpected transcript: %q", updated.Transcript)
	}
	content, err := os.ReadFile(updated.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript file: %v", err)
	}
	if string(content) != updated.Transcript {
		t.Fatalf("transcript file mismatch: %q", content)
	}
}

func TestExecuteEmptyTranscriptStillReachesDraft(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	dir := t.TempDir()
	audioPath := testsupport.WriteFile(t, dir, "silent.wav", []byte("wav"))
	testsupport.NewRecording(t, store, "rec-2", "/v/rec-2.webm", "")
	if err := store.StartProcessing(ctx, "rec-2"); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := store.SetAudio(ctx, "rec-2", audioPath); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	handler := transcribe.New(cfg, store, transcriber.New(cfg), nil)
	if err := handler.Execute(ctx, rec, nil); err != nil {
		t.Fatalf("silent recording must still park as draft: %v", err)
	}

	updated, err := store.GetByID(ctx, "rec-2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != recording.StatusDraftReady {
		t.Fatalf("expected draft ready, got %s", updated.Status)
	}
	if updated.Transcript != "" {
		t.Fatalf("expected empty transcript, got %q", updated.Transcript)
	}
}

func TestExecutePropagatesServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	store := testsupport.MustOpenRecordingStore(t, cfg)

	ctx := context.Background()
	dir := t.TempDir()
	audioPath := testsupport.WriteFile(t, dir, "audio.wav", []byte("wav"))
	testsupport.NewRecording(t, store, "rec-3", "/v/rec-3.webm", "")
	if err := store.SetAudio(ctx, "rec-3", audioPath); err != nil {
		t.Fatalf("SetAudio failed: %v", err)
	}
	rec, err := store.GetByID(ctx, "rec-3")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	handler := transcribe.New(cfg, store, transcriber.New(cfg), nil)
	if err := handler.Execute(ctx, rec, nil); err == nil {
		t.Fatal("expected service failure to propagate")
	}
}

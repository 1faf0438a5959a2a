package narrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"recast/internal/config"
	"recast/internal/recording"
	"recast/internal/services"
)

// Client talks to the script-cleanup and voice-synthesis service. One call
// turns a raw transcript into a polished script and a synthesized voiceover.
type Client struct {
	baseURL string
	apiKey  string
	voice   string
	http    *http.Client
}

// New constructs a narration client from configuration.
func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Narrator.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.Narrator.BaseURL, "/"),
		apiKey:  cfg.Narrator.APIKey,
		voice:   cfg.Narrator.Voice,
		http:    &http.Client{Timeout: timeout},
	}
}

// Request carries the inputs for one narration run.
type Request struct {
	Transcript     string
	Events         []recording.InteractionEvent
	TargetLanguage string
}

// Result is the outcome of a narration run.
type Result struct {
	CleanedScript string
	VoiceoverPath string
}

type narrationPayload struct {
	Transcript string                       `json:"transcript"`
	Events     []recording.InteractionEvent `json:"events,omitempty"`
	Language   string                       `json:"language"`
	Voice      string                       `json:"voice,omitempty"`
}

type narrationResponse struct {
	CleanedScript string `json:"cleaned_script"`
	AudioBase64   string `json:"audio_base64"`
}

// Narrate cleans up the transcript and synthesizes the voiceover, writing
// the audio to voiceoverPath.
func (c *Client) Narrate(ctx context.Context, req Request, voiceoverPath string) (Result, error) {
	if c.baseURL == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ai-process", "narrate", "narrator base URL not configured", nil)
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ai-process", "narrate", "transcript is required", nil)
	}

	payload, err := json.Marshal(narrationPayload{
		Transcript: req.Transcript,
		Events:     req.Events,
		Language:   req.TargetLanguage,
		Voice:      c.voice,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/narration", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyStatus(resp)
	}

	var parsed narrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, services.Wrap(services.ErrUnavailable, "ai-process", "narrate", "malformed service response", err)
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return Result{}, services.Wrap(services.ErrUnavailable, "ai-process", "narrate", "malformed audio payload", err)
	}
	if err := os.WriteFile(voiceoverPath, audio, 0o644); err != nil {
		return Result{}, fmt.Errorf("write voiceover: %w", err)
	}

	return Result{CleanedScript: parsed.CleanedScript, VoiceoverPath: voiceoverPath}, nil
}

func classifyTransportError(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "ai-process", "http", "narrator timed out", err)
	}
	return services.Wrap(services.ErrUnavailable, "ai-process", "http", "narrator unreachable", err)
}

func classifyStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))
	msg := fmt.Sprintf("narrator returned %d", resp.StatusCode)
	if detail != "" {
		msg += ": " + detail
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return services.Wrap(services.ErrRejectedInput, "ai-process", "http", msg, nil)
	}
	return services.Wrap(services.ErrUnavailable, "ai-process", "http", msg, nil)
}

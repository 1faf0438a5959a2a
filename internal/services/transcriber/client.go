package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"recast/internal/config"
	"recast/internal/services"
)

// Client talks to the speech-to-text service. An empty transcript is a valid
// result: silent recordings transcribe to nothing.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

// New constructs a transcription client from configuration.
func New(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Transcriber.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.Transcriber.BaseURL, "/"),
		model:   cfg.Transcriber.Model,
		http:    &http.Client{Timeout: timeout},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the transcript text. The
// optional language hint narrows the decoder; empty means autodetect.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrValidation, "transcribe", "transcribe", "transcriber base URL not configured", nil)
	}
	audio, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrRejectedInput, "transcribe", "transcribe", "audio file not readable", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if c.model != "" {
		if err := form.WriteField("model", c.model); err != nil {
			return "", fmt.Errorf("build form: %w", err)
		}
	}
	if language != "" {
		if err := form.WriteField("language", language); err != nil {
			return "", fmt.Errorf("build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportError("transcribe", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("transcribe", resp)
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe", "transcribe", "malformed service response", err)
	}
	return parsed.Text, nil
}

func classifyTransportError(stage string, err error) error {
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, stage, "http", "service timed out", err)
	}
	return services.Wrap(services.ErrUnavailable, stage, "http", "service unreachable", err)
}

func classifyStatus(stage string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))
	msg := fmt.Sprintf("service returned %d", resp.StatusCode)
	if detail != "" {
		msg += ": " + detail
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return services.Wrap(services.ErrRejectedInput, stage, "http", msg, nil)
	}
	return services.Wrap(services.ErrUnavailable, stage, "http", msg, nil)
}

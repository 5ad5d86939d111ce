// Package speech synthesizes narration audio for part scripts. The service
// returns per-word timing marks, which downstream censoring uses to place
// bleeps.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// WordMark is one spoken word with its position in the audio stream.
type WordMark struct {
	Word    string `json:"word"`
	StartMS int    `json:"start_ms"`
	EndMS   int    `json:"end_ms"`
}

// Result describes one synthesized narration file.
type Result struct {
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	Marks           []WordMark
}

// Client talks to the speech synthesis service.
type Client struct {
	baseURL    string
	voice      string
	httpClient *http.Client
}

// NewClient wires a speech client from configuration.
func NewClient(cfg config.Speech, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		voice:      strings.TrimSpace(cfg.Voice),
		httpClient: httpClient,
	}
}

type synthesizeRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type synthesizeResponse struct {
	AudioBase64     string     `json:"audio_base64"`
	DurationSeconds float64    `json:"duration_seconds"`
	Marks           []WordMark `json:"marks"`
	Error           string     `json:"error"`
}

// Synthesize narrates text into an MP3 at dest and returns timing metadata.
func (c *Client) Synthesize(ctx context.Context, text, dest string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "speech", "synthesize", "text required", nil)
	}
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "synthesize", "base url required", nil)
	}

	payload, err := json.Marshal(synthesizeRequest{Text: text, Voice: c.voice, Format: "mp3"})
	if err != nil {
		return nil, fmt.Errorf("speech request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize",
			fmt.Sprintf("service returned %s", resp.Status), nil)
	default:
		return nil, services.Wrap(services.ErrValidation, "speech", "synthesize",
			fmt.Sprintf("service returned %s: %s", resp.Status, strings.TrimSpace(string(body))), nil)
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "decode response", err)
	}
	if parsed.Error != "" {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", parsed.Error, nil)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "decode audio", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "empty audio payload", nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("speech output: mkdir: %w", err)
	}
	if err := os.WriteFile(dest, audio, 0o644); err != nil {
		return nil, fmt.Errorf("speech output: write %s: %w", dest, err)
	}

	return &Result{
		Path:            dest,
		DurationSeconds: parsed.DurationSeconds,
		SizeBytes:       int64(len(audio)),
		Marks:           parsed.Marks,
	}, nil
}

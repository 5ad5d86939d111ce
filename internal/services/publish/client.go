// Package publish uploads finished videos to the video platform. Every
// upload spends a fixed unit cost against the platform's daily API quota.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/services"
)

const (
	defaultHTTPTimeout = 600 * time.Second

	// UploadUnitCost is the quota units one video upload costs.
	UploadUnitCost = 1600
)

// Request describes one video to publish.
type Request struct {
	FilePath    string
	Title       string
	Description string
	Tags        []string
}

// Published identifies the uploaded video on the platform.
type Published struct {
	ExternalID string `json:"id"`
	URL        string `json:"url"`
	UnitsSpent int    `json:"-"`
}

// Client talks to the publish platform.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient wires a publish client from configuration.
func NewClient(cfg config.Publish, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}
}

// Publish uploads one video. Quota exhaustion reported by the platform maps
// to services.ErrQuotaExhausted so the caller stops draining the queue.
func (c *Client) Publish(ctx context.Context, request Request) (*Published, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "upload", "base url required", nil)
	}
	if strings.TrimSpace(request.Title) == "" {
		return nil, services.Wrap(services.ErrValidation, "publish", "upload", "title required", nil)
	}
	file, err := os.Open(request.FilePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "publish", "upload",
			fmt.Sprintf("open %s", request.FilePath), err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		formErr := writer.WriteField("title", request.Title)
		if formErr == nil && request.Description != "" {
			formErr = writer.WriteField("description", request.Description)
		}
		if formErr == nil && len(request.Tags) > 0 {
			formErr = writer.WriteField("tags", strings.Join(request.Tags, ","))
		}
		if formErr == nil {
			var part io.Writer
			part, formErr = writer.CreateFormFile("video", filepath.Base(request.FilePath))
			if formErr == nil {
				_, formErr = io.Copy(part, file)
			}
		}
		if formErr == nil {
			formErr = writer.Close()
		}
		pw.CloseWithError(formErr)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", pr)
	if err != nil {
		return nil, fmt.Errorf("publish upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "upload", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "upload", "read body", err)
	}
	if err := classifyStatus(resp, body); err != nil {
		return nil, err
	}

	var published Published
	if err := json.Unmarshal(body, &published); err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "upload", "decode response", err)
	}
	if published.ExternalID == "" {
		return nil, services.Wrap(services.ErrTransient, "publish", "upload", "response missing id", nil)
	}
	published.UnitsSpent = UploadUnitCost
	return &published, nil
}

func classifyStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	detail := fmt.Sprintf("platform returned %s: %s", resp.Status, snippet)

	if quotaExceeded(resp.StatusCode, snippet) {
		return services.Wrap(services.ErrQuotaExhausted, "publish", "upload", detail, nil)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "publish", "upload", detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "publish", "upload", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "publish", "upload", detail, nil)
	}
}

// quotaExceeded spots the platform's daily quota error, which arrives as a
// 403 with a quota reason in the body.
func quotaExceeded(status int, body string) bool {
	if status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "uploadlimitexceeded")
}

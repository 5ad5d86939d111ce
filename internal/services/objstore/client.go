// Package objstore stores rendered artifacts in a remote object store so
// local copies can be evicted and published later from anywhere.
package objstore

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

const defaultHTTPTimeout = 300 * time.Second

// Stored identifies an uploaded object.
type Stored struct {
	RemoteID string `json:"id"`
	URL      string `json:"url"`
}

// Client talks to the object storage service.
type Client struct {
	baseURL    string
	apiKey     string
	folder     string
	httpClient *http.Client
}

// NewClient wires a storage client from configuration.
func NewClient(cfg config.Storage, httpClient *http.Client) *Client {
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
		folder:     strings.TrimSpace(cfg.Folder),
		httpClient: httpClient,
	}
}

// Upload sends a local file to the store and returns its remote identity.
func (c *Client) Upload(ctx context.Context, localPath string) (*Stored, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "upload", "base url required", nil)
	}
	file, err := os.Open(localPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "storage", "upload",
			fmt.Sprintf("open %s", localPath), err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		// The folder field must precede the file part; starting a new
		// part finishes the previous one.
		var formErr error
		if c.folder != "" {
			formErr = writer.WriteField("folder", c.folder)
		}
		var part io.Writer
		if formErr == nil {
			part, formErr = writer.CreateFormFile("file", filepath.Base(localPath))
		}
		if formErr == nil {
			_, formErr = io.Copy(part, file)
		}
		if formErr == nil {
			formErr = writer.Close()
		}
		pw.CloseWithError(formErr)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", pr)
	if err != nil {
		return nil, fmt.Errorf("storage upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "upload", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "upload", "read body", err)
	}
	if err := classifyStatus("storage", "upload", resp, body); err != nil {
		return nil, err
	}

	var stored Stored
	if err := json.Unmarshal(body, &stored); err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "upload", "decode response", err)
	}
	if stored.RemoteID == "" {
		return nil, services.Wrap(services.ErrTransient, "storage", "upload", "response missing id", nil)
	}
	return &stored, nil
}

// Download fetches a stored object to dest.
func (c *Client) Download(ctx context.Context, remoteID, dest string) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "storage", "download", "base url required", nil)
	}
	if strings.TrimSpace(remoteID) == "" {
		return services.Wrap(services.ErrValidation, "storage", "download", "remote id required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+remoteID, nil)
	if err != nil {
		return fmt.Errorf("storage download: new request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "download", "http error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "storage", "download",
			fmt.Sprintf("object %s not found", remoteID), nil)
	}
	if err := classifyStatus("storage", "download", resp, nil); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("storage download: mkdir: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("storage download: create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrTransient, "storage", "download", "copy body", err)
	}
	return nil
}

// Object describes one stored file in a listing.
type Object struct {
	RemoteID  string `json:"id"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

// List enumerates objects under a folder. An empty folder lists the
// client's configured folder.
func (c *Client) List(ctx context.Context, folder string) ([]Object, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "list", "base url required", nil)
	}
	if folder == "" {
		folder = c.folder
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files", nil)
	if err != nil {
		return nil, fmt.Errorf("storage list: new request: %w", err)
	}
	if folder != "" {
		q := req.URL.Query()
		q.Set("folder", folder)
		req.URL.RawQuery = q.Encode()
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", "read body", err)
	}
	if err := classifyStatus("storage", "list", resp, body); err != nil {
		return nil, err
	}

	var listing struct {
		Files []Object `json:"files"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", "decode response", err)
	}
	return listing.Files, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func classifyStatus(stage, op string, resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	detail := fmt.Sprintf("service returned %s", resp.Status)
	if len(body) > 0 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		detail += ": " + snippet
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage, op, detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, stage, op, detail, nil)
	default:
		return services.Wrap(services.ErrValidation, stage, op, detail, nil)
	}
}

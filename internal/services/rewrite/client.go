package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/services"
)

var titleCaser = cases.Title(language.English)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings required to talk to one rewrite
// provider. Any OpenAI-compatible chat completion endpoint works.
type Config struct {
	Name           string
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps one chat completion provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a rewrite client for the supplied provider.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Name:           strings.TrimSpace(cfg.Name),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Name identifies the provider behind this client.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Rewritten is the JSON payload the model returns for a story rewrite.
type Rewritten struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// RewriteStory rewrites a story for narration: clear sentences, no markup,
// a short punchy title, and a handful of topic tags.
func (c *Client) RewriteStory(ctx context.Context, title, body string) (Rewritten, error) {
	var empty Rewritten
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if body == "" {
		return empty, services.Wrap(services.ErrValidation, "rewrite", "story", "story body required", nil)
	}

	user := fmt.Sprintf("Title: %s\n\nStory:\n%s", title, body)
	content, err := c.CompleteJSON(ctx, rewriteStoryPrompt, user)
	if err != nil {
		return empty, err
	}

	var parsed Rewritten
	if err := decodeModelJSON(content, &parsed); err != nil {
		return empty, services.Wrap(services.ErrTransient, "rewrite", "story", "parse payload", err)
	}
	parsed.Title = normalizeTitle(parsed.Title)
	parsed.Body = strings.TrimSpace(parsed.Body)
	if parsed.Body == "" {
		return empty, services.Wrap(services.ErrTransient, "rewrite", "story", "model returned empty body", nil)
	}
	if parsed.Title == "" {
		parsed.Title = normalizeTitle(title)
	}
	normalized := make([]string, 0, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			normalized = append(normalized, strings.ToLower(trimmed))
		}
	}
	parsed.Tags = normalized
	return parsed, nil
}

// ShortenTitle produces a title that fits within maxLength characters.
func (c *Client) ShortenTitle(ctx context.Context, title string, maxLength int) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", services.Wrap(services.ErrValidation, "rewrite", "shorten title", "title required", nil)
	}
	if maxLength <= 0 || len(title) <= maxLength {
		return title, nil
	}

	user := fmt.Sprintf("Maximum length: %d characters.\nTitle: %s", maxLength, title)
	content, err := c.CompleteJSON(ctx, shortenTitlePrompt, user)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Title string `json:"title"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "rewrite", "shorten title", "parse payload", err)
	}
	shortened := strings.TrimSpace(parsed.Title)
	if shortened == "" {
		return "", services.Wrap(services.ErrTransient, "rewrite", "shorten title", "model returned empty title", nil)
	}
	if len(shortened) > maxLength {
		shortened = strings.TrimSpace(shortened[:maxLength])
	}
	return shortened, nil
}

// SuggestTags proposes topic tags for a title. Used when a rewrite comes
// back without any.
func (c *Client) SuggestTags(ctx context.Context, title string) ([]string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "rewrite", "suggest tags", "title required", nil)
	}

	content, err := c.CompleteJSON(ctx, suggestTagsPrompt, title)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tags []string `json:"tags"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "rewrite", "suggest tags", "parse payload", err)
	}
	tags := make([]string, 0, len(parsed.Tags))
	for _, tag := range parsed.Tags {
		if trimmed := strings.ToLower(strings.TrimSpace(tag)); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags, nil
}

// ListCensorTerms asks the model for profanity found in the text. The result
// seeds the locally cached censor vocabulary.
func (c *Client) ListCensorTerms(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	content, err := c.CompleteJSON(ctx, censorTermsPrompt, text)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Terms []string `json:"terms"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "rewrite", "censor terms", "parse payload", err)
	}
	terms := make([]string, 0, len(parsed.Terms))
	for _, term := range parsed.Terms {
		if trimmed := strings.ToLower(strings.TrimSpace(term)); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	return terms, nil
}

// CompleteJSON issues a JSON-only chat completion with the supplied prompts
// and returns the raw JSON payload produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "rewrite", "complete", "prompts required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "rewrite", "complete", "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	completion, body, err := c.sendChatRequestOnce(ctx, payload)
	if err != nil {
		return "", err
	}
	content := extractCompletionContent(completion)
	if content == "" {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", services.Wrap(services.ErrTransient, "rewrite", "complete",
			fmt.Sprintf("empty content (response_snippet=%q)", snippet), nil)
	}
	return content, nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse

	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("rewrite request: encode body: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, fmt.Errorf("rewrite request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, services.Wrap(services.ErrTransient, "rewrite", "complete", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, services.Wrap(services.ErrTransient, "rewrite", "complete", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, body, statusError(resp, body)
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, services.Wrap(services.ErrTransient, "rewrite", "complete", "decode response", err)
	}
	if completion.Error != nil {
		return completion, body, services.Wrap(services.ErrTransient, "rewrite", "complete",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	return completion, body, nil
}

// statusError classifies an HTTP failure so the retry layer knows whether to
// try again. Auth failures are configuration errors; other 4xx are terminal.
func statusError(resp *http.Response, body []byte) error {
	detail := "http " + strconv.Itoa(resp.StatusCode) + ": " + strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300]
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "rewrite", "complete", detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "rewrite", "complete", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "rewrite", "complete", detail, nil)
	}
}

func extractCompletionContent(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		for _, content := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// decodeModelJSON tolerates models that fence their JSON in markdown blocks.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if trimmed == "" {
		return errors.New("empty payload")
	}
	return json.Unmarshal([]byte(trimmed), target)
}

// normalizeTitle trims the title and repairs all-lowercase model output into
// headline casing.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title != "" && title == strings.ToLower(title) {
		return titleCaser.String(title)
	}
	return title
}

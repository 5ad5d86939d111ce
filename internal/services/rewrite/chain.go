package rewrite

import (
	"context"
	"errors"
	"log/slog"

	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/services"
)

// Rewriter is the surface the pipeline depends on.
type Rewriter interface {
	RewriteStory(ctx context.Context, title, body string) (Rewritten, error)
	ShortenTitle(ctx context.Context, title string, maxLength int) (string, error)
	SuggestTags(ctx context.Context, title string) ([]string, error)
	ListCensorTerms(ctx context.Context, text string) ([]string, error)
}

// Chain tries each configured provider in order, falling through on
// transient or configuration failures. The last provider's error wins.
type Chain struct {
	clients []*Client
	logger  *slog.Logger
}

// NewChain builds a provider chain from configuration. Providers without an
// API key are skipped.
func NewChain(cfg config.Rewrite, logger *slog.Logger, opts ...Option) (*Chain, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	clients := make([]*Client, 0, len(cfg.Providers))
	for _, provider := range cfg.Providers {
		if provider.APIKey == "" {
			continue
		}
		clients = append(clients, NewClient(Config{
			Name:           provider.Name,
			APIKey:         provider.APIKey,
			BaseURL:        provider.BaseURL,
			Model:          provider.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, opts...))
	}
	if len(clients) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "rewrite", "init",
			"no rewrite provider has an api key", nil)
	}
	return &Chain{clients: clients, logger: logger}, nil
}

// Providers returns the names of the usable providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.clients))
	for _, client := range c.clients {
		names = append(names, client.Name())
	}
	return names
}

func (c *Chain) RewriteStory(ctx context.Context, title, body string) (Rewritten, error) {
	var result Rewritten
	err := c.each(ctx, "rewrite story", func(client *Client) error {
		var callErr error
		result, callErr = client.RewriteStory(ctx, title, body)
		return callErr
	})
	return result, err
}

func (c *Chain) ShortenTitle(ctx context.Context, title string, maxLength int) (string, error) {
	var result string
	err := c.each(ctx, "shorten title", func(client *Client) error {
		var callErr error
		result, callErr = client.ShortenTitle(ctx, title, maxLength)
		return callErr
	})
	return result, err
}

func (c *Chain) SuggestTags(ctx context.Context, title string) ([]string, error) {
	var result []string
	err := c.each(ctx, "suggest tags", func(client *Client) error {
		var callErr error
		result, callErr = client.SuggestTags(ctx, title)
		return callErr
	})
	return result, err
}

func (c *Chain) ListCensorTerms(ctx context.Context, text string) ([]string, error) {
	var result []string
	err := c.each(ctx, "censor terms", func(client *Client) error {
		var callErr error
		result, callErr = client.ListCensorTerms(ctx, text)
		return callErr
	})
	return result, err
}

func (c *Chain) each(ctx context.Context, op string, fn func(client *Client) error) error {
	var lastErr error
	for _, client := range c.clients {
		err := fn(client)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Validation failures come from the input, not the provider, so
		// trying another provider would repeat them.
		if services.Classify(err) == services.KindValidation {
			return err
		}
		c.logger.Warn("rewrite provider failed, trying next",
			logging.String("operation", op),
			logging.String("provider", client.Name()),
			logging.Error(err),
		)
	}
	return lastErr
}

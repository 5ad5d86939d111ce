// Package source discovers story candidates from configured origins. JSON
// listing endpoints and scraped HTML pages feed the same candidate shape.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"storyreel/internal/config"
	"storyreel/internal/services"
)

const defaultUserAgent = "storyreel/1.0"

// Candidate is one story discovered at an origin, before ingestion.
type Candidate struct {
	ExternalID string
	Origin     string
	Title      string
	Body       string
	Author     string
	Score      int
	URL        string
	Priority   int
}

// Fetcher pulls candidates from origins.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limit     int
}

// NewFetcher wires an HTTP client from configuration.
func NewFetcher(cfg config.Source, client *http.Client) *Fetcher {
	if client == nil {
		timeout := 20 * time.Second
		if cfg.RequestTimeout > 0 {
			timeout = time.Duration(cfg.RequestTimeout) * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	limit := cfg.FetchLimit
	if limit <= 0 {
		limit = 25
	}
	return &Fetcher{client: client, userAgent: userAgent, limit: limit}
}

// Fetch returns up to the configured limit of candidates from one origin.
func (f *Fetcher) Fetch(ctx context.Context, origin Origin) ([]Candidate, error) {
	switch origin.Kind {
	case KindJSON:
		return f.fetchListing(ctx, origin)
	case KindHTML:
		return f.fetchPage(ctx, origin)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "source", "fetch",
			fmt.Sprintf("origin %q has unknown kind %q", origin.Name, origin.Kind), nil)
	}
}

// listingResponse mirrors the reddit-style JSON listing shape.
type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				SelfText  string `json:"selftext"`
				Author    string `json:"author"`
				Score     int    `json:"score"`
				Permalink string `json:"permalink"`
				Stickied  bool   `json:"stickied"`
				Over18    bool   `json:"over_18"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (f *Fetcher) fetchListing(ctx context.Context, origin Origin) ([]Candidate, error) {
	body, err := f.get(ctx, origin.URL)
	if err != nil {
		return nil, err
	}

	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "fetch",
			fmt.Sprintf("origin %q: decode listing", origin.Name), err)
	}

	candidates := make([]Candidate, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		entry := child.Data
		if entry.Stickied || entry.Over18 || strings.TrimSpace(entry.SelfText) == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			ExternalID: origin.Name + ":" + entry.ID,
			Origin:     origin.Name,
			Title:      strings.TrimSpace(entry.Title),
			Body:       strings.TrimSpace(entry.SelfText),
			Author:     entry.Author,
			Score:      entry.Score,
			URL:        absoluteURL(origin.URL, entry.Permalink),
			Priority:   origin.Priority,
		})
		if len(candidates) >= f.limit {
			break
		}
	}
	return candidates, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, origin Origin) ([]Candidate, error) {
	body, err := f.get(ctx, origin.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "fetch",
			fmt.Sprintf("origin %q: parse document", origin.Name), err)
	}

	var candidates []Candidate
	doc.Find(origin.Selectors.Item).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(origin.Selectors.Title).First().Text())
		text := strings.TrimSpace(sel.Find(origin.Selectors.Body).First().Text())
		if title == "" || text == "" {
			return true
		}

		link := ""
		if origin.Selectors.Link != "" {
			if href, ok := sel.Find(origin.Selectors.Link).First().Attr("href"); ok {
				link = absoluteURL(origin.URL, href)
			}
		}
		externalID := link
		if externalID == "" {
			externalID = fmt.Sprintf("%s#%d", origin.URL, i)
		}

		candidates = append(candidates, Candidate{
			ExternalID: origin.Name + ":" + externalID,
			Origin:     origin.Name,
			Title:      title,
			Body:       text,
			URL:        link,
			Priority:   origin.Priority,
		})
		return len(candidates) < f.limit
	})
	return candidates, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "source", "fetch", "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, services.Wrap(services.ErrTransient, "source", "fetch",
			fmt.Sprintf("origin returned %s", resp.Status), nil)
	default:
		return nil, services.Wrap(services.ErrValidation, "source", "fetch",
			fmt.Sprintf("origin returned %s", resp.Status), nil)
	}

	const maxBody = 4 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "source", "fetch", "read body", err)
	}
	return body, nil
}

func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsedBase, err := url.Parse(base)
	if err != nil {
		return href
	}
	parsedHref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return parsedBase.ResolveReference(parsedHref).String()
}

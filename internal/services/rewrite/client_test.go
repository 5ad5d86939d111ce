package rewrite_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/services"
	"storyreel/internal/services/rewrite"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func respondContent(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestRewriteStoryParsesPayload(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		respondContent(t, w, `{"title":"Retold","body":"A calmer telling.","tags":["Drama"," life ",""]}`)
	})

	client := rewrite.NewClient(rewrite.Config{
		Name: "test", APIKey: "test-key", BaseURL: server.URL, Model: "test-model",
	}, rewrite.WithHTTPClient(server.Client()))
	result, err := client.RewriteStory(context.Background(), "Original", "Raw story text.")
	if err != nil {
		t.Fatalf("RewriteStory failed: %v", err)
	}
	if result.Title != "Retold" || result.Body != "A calmer telling." {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(result.Tags) != 2 || result.Tags[0] != "drama" || result.Tags[1] != "life" {
		t.Fatalf("unexpected tags: %#v", result.Tags)
	}
}

func TestRewriteStoryRepairsLowercaseTitles(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		respondContent(t, w, `{"title":"the quiet revenge","body":"A calmer telling.","tags":[]}`)
	})

	client := rewrite.NewClient(rewrite.Config{
		Name: "test", APIKey: "test-key", BaseURL: server.URL, Model: "test-model",
	})
	result, err := client.RewriteStory(context.Background(), "Original", "Raw story text.")
	if err != nil {
		t.Fatalf("RewriteStory failed: %v", err)
	}
	if result.Title != "The Quiet Revenge" {
		t.Fatalf("title = %q, want headline casing", result.Title)
	}
}

func TestRewriteStoryToleratesFencedJSON(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		respondContent(t, w, "```json\n{\"title\":\"T\",\"body\":\"B\",\"tags\":[]}\n```")
	})

	client := rewrite.NewClient(rewrite.Config{
		Name: "test", APIKey: "k", BaseURL: server.URL, Model: "m",
	})
	result, err := client.RewriteStory(context.Background(), "Original", "Story.")
	if err != nil {
		t.Fatalf("RewriteStory failed: %v", err)
	}
	if result.Body != "B" {
		t.Fatalf("unexpected body: %q", result.Body)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   services.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, services.KindConfiguration},
		{"rate limited", http.StatusTooManyRequests, services.KindTransient},
		{"server error", http.StatusInternalServerError, services.KindTransient},
		{"bad request", http.StatusBadRequest, services.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			client := rewrite.NewClient(rewrite.Config{
				Name: "test", APIKey: "k", BaseURL: server.URL, Model: "m",
			})
			_, err := client.RewriteStory(context.Background(), "T", "Body.")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := services.Classify(err); got != tc.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}
}

func TestShortenTitleSkipsShortTitles(t *testing.T) {
	client := rewrite.NewClient(rewrite.Config{Name: "test", APIKey: "k", BaseURL: "http://unused", Model: "m"})
	title, err := client.ShortenTitle(context.Background(), "Short enough", 100)
	if err != nil {
		t.Fatalf("ShortenTitle failed: %v", err)
	}
	if title != "Short enough" {
		t.Fatalf("unexpected title: %q", title)
	}
}

func TestSuggestTagsNormalizes(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		respondContent(t, w, `{"tags":["Drama"," life ","","REVENGE"]}`)
	})

	client := rewrite.NewClient(rewrite.Config{
		Name: "test", APIKey: "k", BaseURL: server.URL, Model: "m",
	})
	tags, err := client.SuggestTags(context.Background(), "The Quiet Revenge")
	if err != nil {
		t.Fatalf("SuggestTags failed: %v", err)
	}
	want := []string{"drama", "life", "revenge"}
	if len(tags) != len(want) {
		t.Fatalf("unexpected tags: %#v", tags)
	}
	for i, tag := range want {
		if tags[i] != tag {
			t.Fatalf("tags[%d] = %q, want %q", i, tags[i], tag)
		}
	}
}

func TestChainFallsThroughToNextProvider(t *testing.T) {
	broken := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	working := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		respondContent(t, w, `{"title":"Backup","body":"Second provider wins.","tags":[]}`)
	})

	chain, err := rewrite.NewChain(config.Rewrite{
		Providers: []config.RewriteProvider{
			{Name: "broken", APIKey: "k1", BaseURL: broken.URL, Model: "m"},
			{Name: "working", APIKey: "k2", BaseURL: working.URL, Model: "m"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	result, err := chain.RewriteStory(context.Background(), "T", "Body.")
	if err != nil {
		t.Fatalf("RewriteStory failed: %v", err)
	}
	if result.Title != "Backup" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestChainRequiresAProviderWithKey(t *testing.T) {
	_, err := rewrite.NewChain(config.Rewrite{
		Providers: []config.RewriteProvider{{Name: "empty"}},
	}, nil)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if services.Classify(err) != services.KindConfiguration {
		t.Fatalf("expected configuration kind, got %v", err)
	}
}

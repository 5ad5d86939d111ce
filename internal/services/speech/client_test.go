package speech_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/services"
	"storyreel/internal/services/speech"
)

func TestSynthesizeWritesAudioAndMarks(t *testing.T) {
	audio := []byte("fake mp3 bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Voice != "en-US-TestNeural" {
			t.Errorf("unexpected voice %q", req.Voice)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64":     base64.StdEncoding.EncodeToString(audio),
			"duration_seconds": 4.2,
			"marks": []map[string]any{
				{"word": "hello", "start_ms": 0, "end_ms": 400},
				{"word": "world", "start_ms": 450, "end_ms": 900},
			},
		})
	}))
	defer server.Close()

	client := speech.NewClient(config.Speech{BaseURL: server.URL, Voice: "en-US-TestNeural"}, nil)
	dest := filepath.Join(t.TempDir(), "audio", "part1.mp3")
	result, err := client.Synthesize(context.Background(), "hello world", dest)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.DurationSeconds != 4.2 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds)
	}
	if len(result.Marks) != 2 || result.Marks[1].Word != "world" {
		t.Fatalf("unexpected marks: %#v", result.Marks)
	}

	written, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(written) != string(audio) {
		t.Fatal("audio bytes were not written verbatim")
	}
	if result.SizeBytes != int64(len(audio)) {
		t.Fatalf("unexpected size %d", result.SizeBytes)
	}
}

func TestSynthesizeClassifiesOverloadTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := speech.NewClient(config.Speech{BaseURL: server.URL}, nil)
	_, err := client.Synthesize(context.Background(), "text", filepath.Join(t.TempDir(), "out.mp3"))
	if err == nil {
		t.Fatal("expected error")
	}
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	client := speech.NewClient(config.Speech{BaseURL: "http://unused"}, nil)
	_, err := client.Synthesize(context.Background(), "   ", "out.mp3")
	if services.Classify(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

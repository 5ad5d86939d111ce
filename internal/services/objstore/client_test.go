package objstore_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storyreel/internal/config"
	"storyreel/internal/services"
	"storyreel/internal/services/objstore"
)

func TestUploadSendsMultipartAndParsesIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer store-key" {
			t.Errorf("unexpected auth %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("folder"); got != "videos" {
			t.Errorf("unexpected folder %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			defer file.Close()
			content, _ := io.ReadAll(file)
			if string(content) != "video bytes" || header.Filename != "part.mp4" {
				t.Errorf("unexpected upload: %q %q", content, header.Filename)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "obj-1", "url": "https://store.example/obj-1",
		})
	}))
	defer server.Close()

	local := filepath.Join(t.TempDir(), "part.mp4")
	if err := os.WriteFile(local, []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	client := objstore.NewClient(config.Storage{
		BaseURL: server.URL, APIKey: "store-key", Folder: "videos",
	}, nil)
	stored, err := client.Upload(context.Background(), local)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if stored.RemoteID != "obj-1" || stored.URL != "https://store.example/obj-1" {
		t.Fatalf("unexpected identity: %#v", stored)
	}
}

func TestDownloadWritesObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/obj-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("stored bytes"))
	}))
	defer server.Close()

	client := objstore.NewClient(config.Storage{BaseURL: server.URL}, nil)
	dest := filepath.Join(t.TempDir(), "downloads", "obj.mp4")
	if err := client.Download(context.Background(), "obj-9", dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(content) != "stored bytes" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestListScopesToConfiguredFolder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("folder"); got != "videos" {
			t.Errorf("unexpected folder %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "obj-1", "name": "part01.mp4", "size_bytes": 2048},
				{"id": "obj-2", "name": "part02.mp4", "size_bytes": 4096},
			},
		})
	}))
	defer server.Close()

	client := objstore.NewClient(config.Storage{BaseURL: server.URL, Folder: "videos"}, nil)
	objects, err := client.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 || objects[0].RemoteID != "obj-1" || objects[1].SizeBytes != 4096 {
		t.Fatalf("unexpected listing: %#v", objects)
	}
}

func TestDownloadMissingObjectIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := objstore.NewClient(config.Storage{BaseURL: server.URL}, nil)
	err := client.Download(context.Background(), "missing", filepath.Join(t.TempDir(), "x"))
	if services.Classify(err) != services.KindNotFound {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}

func TestUploadClassifiesAuthFailureAsConfiguration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	local := filepath.Join(t.TempDir(), "a.mp4")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	client := objstore.NewClient(config.Storage{BaseURL: server.URL, APIKey: "bad"}, nil)
	_, err := client.Upload(context.Background(), local)
	if services.Classify(err) != services.KindConfiguration {
		t.Fatalf("expected configuration classification, got %v", err)
	}
}

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		arg  string
		want bool
	}{
		{"https://example.com/a.pdf", true},
		{"http://example.com", true},
		{"file:///tmp/a.pdf", false},
		{"/tmp/a.pdf", false},
		{"https://", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRemote(tt.arg); got != tt.want {
			t.Fatalf("IsRemote(%q) = %v, want %v", tt.arg, got, tt.want)
		}
	}
}

func TestClient_Download(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/paper.pdf":
			_, _ = w.Write([]byte("%PDF-1.4\n"))
		case "/notes":
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			_, _ = w.Write([]byte("# Notes\n"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	c := NewClient(Options{Dir: dir, MaxBytes: 32})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	tests := []struct {
		path    string
		ext     string
		content string
	}{
		{"/paper.pdf", ".pdf", "%PDF-1.4\n"},
		{"/notes", ".md", "# Notes\n"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			name, err := c.Download(ctx, server.URL+tt.path)
			if err != nil {
				t.Fatalf("Download returned error: %v", err)
			}
			if filepath.Dir(name) != dir {
				t.Fatalf("Download path = %q, want it under %q", name, dir)
			}
			if got := filepath.Ext(name); got != tt.ext {
				t.Fatalf("extension = %q, want %q", got, tt.ext)
			}
			data, err := os.ReadFile(name)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if string(data) != tt.content {
				t.Fatalf("content = %q, want %q", data, tt.content)
			}
		})
	}
	if gotUserAgent != defaultUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUserAgent, defaultUserAgent)
	}

	if _, err := c.Download(ctx, server.URL+"/missing.pdf"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Download(missing) error = %v, want status 404", err)
	}
	if _, err := c.Download(ctx, server.URL+"/big"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Download(big) error = %v, want ErrTooLarge", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("files left = %d, want 2 (failed downloads removed)", len(entries))
	}
}

func TestClient_DownloadRejectsLocalPaths(t *testing.T) {
	c := NewClient(Options{})
	if _, err := c.Download(context.Background(), "/etc/hosts"); err == nil {
		t.Fatal("Download of a local path succeeded")
	}
}

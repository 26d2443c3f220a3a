package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	v0 "pdfbot/internal/contracts/renderer/v0"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
)

func TestHTTPClient_Render(t *testing.T) {
	var got v0.RenderRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer ts.Close()

	tmp := t.TempDir()
	c := NewHTTPClient(ts.URL, tmp, time.Second)

	ctx := logger.ContextWithJobID(context.Background(), "job-7")
	path, err := c.Render(ctx, "https://example.com", map[string]any{"format": "A4"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if filepath.Dir(path) != tmp || filepath.Ext(path) != ".pdf" {
		t.Errorf("unexpected artifact path %s", path)
	}
	if b, _ := os.ReadFile(path); string(b) != "%PDF-1.7" {
		t.Errorf("artifact = %q", b)
	}
	if got.URL != "https://example.com" || got.Options["format"] != "A4" || got.JobID != "job-7" {
		t.Errorf("request body = %+v", got)
	}
}

func TestHTTPClient_RenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "chrome crashed", http.StatusInternalServerError)
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			tmp := t.TempDir()
			_, err := NewHTTPClient(ts.URL, tmp, time.Second).Render(context.Background(), "https://example.com", nil)
			if !errors.IsCode(err, errors.CodeRender) {
				t.Fatalf("expected render error, got %v", err)
			}
			if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
				t.Errorf("expected no leftover files, got %d", len(entries))
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, t.TempDir(), time.Second).Render(context.Background(), "https://example.com", nil)
	if !errors.IsCode(err, errors.CodeRender) {
		t.Errorf("expected render error, got %v", err)
	}
}

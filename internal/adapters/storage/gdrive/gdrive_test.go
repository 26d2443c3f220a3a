package gdrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

func TestNew_MissingCredentials(t *testing.T) {
	tests := []Config{
		{ClientSecret: "s", RefreshToken: "r"},
		{ClientID: "c", RefreshToken: "r"},
		{ClientID: "c", ClientSecret: "s"},
	}
	for _, cfg := range tests {
		if _, err := New(context.Background(), cfg); !errors.IsCode(err, errors.CodeConfiguration) {
			t.Errorf("New(%+v) expected configuration error, got %v", cfg, err)
		}
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	return newTestClientWith(t, h, false)
}

func newTestClientWith(t *testing.T, h http.HandlerFunc, removeLocal bool) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	srv, err := drive.NewService(context.Background(),
		option.WithHTTPClient(ts.Client()),
		option.WithEndpoint(ts.URL+"/"),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(srv, "folder-1", removeLocal)
}

func TestUpload(t *testing.T) {
	var method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"file-123"}`))
	})

	local := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(local, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	loc, err := c.Upload(context.Background(), local, &models.Job{ID: "job-1", URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("expected POST, got %s", method)
	}
	if loc.Provider != Name || loc.FileID != "file-123" {
		t.Errorf("Upload() = %+v", loc)
	}
}

func TestUpload_RemoveLocal(t *testing.T) {
	c := newTestClientWith(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"file-9"}`))
	}, true)

	local := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(local, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Upload(context.Background(), local, &models.Job{ID: "job-1"}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Errorf("expected local artifact to be removed, stat err = %v", err)
	}
}

func TestUpload_FailureKeepsLocal(t *testing.T) {
	c := newTestClientWith(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}, true)

	local := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(local, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Upload(context.Background(), local, &models.Job{ID: "job-1"}); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := os.Stat(local); err != nil {
		t.Errorf("a failed upload must leave the artifact for the engine, stat err = %v", err)
	}
}

func TestUpload_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	})

	local := filepath.Join(t.TempDir(), "a.pdf")
	os.WriteFile(local, []byte("%PDF"), 0o644)

	_, err := c.Upload(context.Background(), local, &models.Job{ID: "job-1"})
	if !errors.IsCode(err, errors.CodeStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"pdfbot/internal/pkg/errors"
)

type cli struct {
	t       *testing.T
	cfgPath string
	root    string
}

// newCLI writes a config pointing at a temp storage root and the given
// renderer, then installs the layout.
func newCLI(t *testing.T, rendererURL string) *cli {
	t.Helper()
	dir := t.TempDir()
	c := &cli{t: t, cfgPath: filepath.Join(dir, "pdf-bot.config.json"), root: filepath.Join(dir, "storage")}

	cfg := map[string]any{
		"storage_path": c.root,
		"renderer":     map[string]any{"base_url": rendererURL},
		"storage":      map[string]any{"provider": "local"},
	}
	raw, _ := json.Marshal(cfg)
	if err := os.WriteFile(c.cfgPath, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.run("install"); err != nil {
		t.Fatalf("install: %v", err)
	}
	return c
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) push(url string) string {
	c.t.Helper()
	out, err := c.run("push", url)
	if err != nil {
		c.t.Fatalf("push: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "Queued" {
		c.t.Fatalf("unexpected push output %q", out)
	}
	return fields[1]
}

func pdfRenderer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 test"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func brokenRenderer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser crashed", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstall(t *testing.T) {
	c := newCLI(t, "http://localhost:9000")

	for _, sub := range []string{"db", "pdf", "tmp"} {
		if _, err := os.Stat(filepath.Join(c.root, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}

	out, err := c.run("install")
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("expected existing config to be kept, got %q", out)
	}
}

func TestPushShiftJobs(t *testing.T) {
	c := newCLI(t, pdfRenderer(t).URL)
	id := c.push("https://example.com/invoice/1")

	out, err := c.run("shift")
	if err != nil {
		t.Fatalf("shift: %v", err)
	}
	if !strings.Contains(out, "Generated "+id) {
		t.Errorf("unexpected shift output %q", out)
	}

	pdfs, _ := filepath.Glob(filepath.Join(c.root, "pdf", "*.pdf"))
	if len(pdfs) != 1 {
		t.Errorf("expected one stored pdf, got %v", pdfs)
	}

	out, err = c.run("jobs", "--completed")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "COMPLETED") {
		t.Errorf("expected completed job in listing, got %q", out)
	}

	out, err = c.run("shift")
	if err != nil {
		t.Fatalf("second shift: %v", err)
	}
	if !strings.Contains(out, "No jobs are due") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestShiftAll_RecordsFailures(t *testing.T) {
	c := newCLI(t, brokenRenderer(t).URL)
	c.push("https://example.com/a")
	c.push("https://example.com/b")

	out, err := c.run("shift:all")
	if err != nil {
		t.Fatalf("shift:all: %v", err)
	}
	if !strings.Contains(out, "2 generations attempted") || !strings.Contains(out, "0 succeeded, 2 failed") {
		t.Errorf("unexpected summary %q", out)
	}

	out, err = c.run("jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if strings.Count(out, "PENDING") != 2 {
		t.Errorf("expected two pending jobs, got %q", out)
	}
}

func TestGenerate_UnknownJob(t *testing.T) {
	c := newCLI(t, pdfRenderer(t).URL)

	_, err := c.run("generate", "missing")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPush_Validation(t *testing.T) {
	c := newCLI(t, pdfRenderer(t).URL)

	if _, err := c.run("push", "https://example.com", "--meta", "[1,2]"); !errors.IsValidation(err) {
		t.Errorf("expected validation error for meta, got %v", err)
	}
	if _, err := c.run("push", "not a url"); !errors.IsValidation(err) {
		t.Errorf("expected validation error for url, got %v", err)
	}
}

func TestPing_RequiresWebhook(t *testing.T) {
	c := newCLI(t, pdfRenderer(t).URL)
	id := c.push("https://example.com")

	_, err := c.run("ping", id)
	if !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPingWithWebhook(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()
	t.Setenv("WEBHOOK_URL", hook.URL)

	c := newCLI(t, pdfRenderer(t).URL)
	id := c.push("https://example.com")

	if _, err := c.run("generate", id); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected the webhook to fire on success, got %d hits", n)
	}

	if _, err := c.run("ping", id); err != nil {
		t.Fatalf("ping: %v", err)
	}
	out, err := c.run("pings", id)
	if err != nil {
		t.Fatalf("pings: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], " 204 ") || !strings.Contains(lines[2], " 204 ") {
		t.Errorf("expected two recorded pings, got %q", out)
	}
}

func TestPurgeAndUnlock(t *testing.T) {
	c := newCLI(t, pdfRenderer(t).URL)
	id := c.push("https://example.com/done")
	c.push("https://example.com/new")

	if _, err := c.run("generate", id); err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := c.run("purge")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(out, "Removed 1 job(s)") {
		t.Errorf("unexpected purge output %q", out)
	}

	out, err = c.run("purge", "--new")
	if err != nil {
		t.Fatalf("purge --new: %v", err)
	}
	if !strings.Contains(out, "Removed 1 job(s)") {
		t.Errorf("unexpected purge output %q", out)
	}

	out, err = c.run("unlock")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !strings.Contains(out, "Queue unlocked") {
		t.Errorf("unexpected unlock output %q", out)
	}
}

func TestMissingLayout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.json")
	raw, _ := json.Marshal(map[string]any{"storage_path": filepath.Join(dir, "nowhere")})
	if err := os.WriteFile(cfgPath, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "jobs"})
	if err := root.Execute(); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

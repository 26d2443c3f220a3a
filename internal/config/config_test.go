package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pdfbot/internal/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pdf-bot.config.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.GenerationMaxTries != 5 || cfg.Queue.Parallelism != 4 || cfg.QueueBackend != "json" {
		t.Errorf("unexpected defaults %+v", cfg.Queue)
	}
	p := cfg.GenerationPolicy()
	if p.MaxTries != 5 || p.Strategy.Delay(nil, 3) != 10*time.Minute {
		t.Errorf("unexpected generation policy %+v", p)
	}
	if cfg.WebhookEnabled() {
		t.Error("webhook should be disabled without a url")
	}
	sc := cfg.StorageConfig()
	if !sc.S3.RemoveLocal || !sc.GDrive.RemoveLocal {
		t.Errorf("remote plugins should remove local artifacts by default: %+v / %+v", sc.S3, sc.GDrive)
	}
}

func TestLoad_RemoveLocalOverrides(t *testing.T) {
	path := writeConfig(t, `{"storage": {"provider": "gdrive", "s3": {"remove_local": false}}}`)
	t.Setenv("GDRIVE_REMOVE_LOCAL", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sc := cfg.StorageConfig()
	if sc.S3.RemoveLocal || sc.GDrive.RemoveLocal {
		t.Errorf("expected file and env to disable removal: %+v / %+v", sc.S3, sc.GDrive)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
		"storage_path": "/srv/pdf",
		"queue": {"generation_max_tries": 3, "generation_schedule": ["30s", 120000], "parallelism": 2},
		"webhook": {"url": "https://hooks.example.com", "secret": "file-secret", "timeout": "3s"},
		"storage": {"provider": "s3", "s3": {"bucket": "from-file", "region": "eu-west-1"}}
	}`)

	t.Setenv("WEBHOOK_SECRET", "env-secret")
	t.Setenv("S3_BUCKET", "from-env")
	t.Setenv("WEBHOOK_HEADERS", "Authorization=Bearer x, X-Tenant=acme")
	t.Setenv("PARALLELISM", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.StoragePath != "/srv/pdf" || cfg.Queue.Parallelism != 2 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if got := cfg.Queue.GenerationSchedule; len(got) != 2 || got[0].Duration != 30*time.Second || got[1].Duration != 2*time.Minute {
		t.Errorf("schedule = %v", got)
	}
	if cfg.Webhook.Secret != "env-secret" || cfg.Webhook.Timeout.Duration != 3*time.Second {
		t.Errorf("webhook = %+v", cfg.Webhook)
	}
	if cfg.Webhook.Headers["X-Tenant"] != "acme" || cfg.Webhook.Headers["Authorization"] != "Bearer x" {
		t.Errorf("headers = %v", cfg.Webhook.Headers)
	}

	sc := cfg.StorageConfig()
	if sc.Provider != "s3" || sc.S3.Bucket != "from-env" || sc.PDFDir != filepath.Join("/srv/pdf", "pdf") {
		t.Errorf("storage config = %+v", sc)
	}
	if wc := cfg.WebhookConfig(); wc.URL != "https://hooks.example.com" || wc.Timeout != 3*time.Second {
		t.Errorf("webhook config = %+v", wc)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing explicit file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"malformed json", func(t *testing.T) string { return writeConfig(t, `{"queue": `) }},
		{"bad duration", func(t *testing.T) string { return writeConfig(t, `{"webhook": {"timeout": "soon"}}`) }},
		{"zero max tries", func(t *testing.T) string { return writeConfig(t, `{"queue": {"generation_max_tries": 0}}`) }},
		{"unknown backend", func(t *testing.T) string { return writeConfig(t, `{"queue_backend": "postgres"}`) }},
		{"unknown provider", func(t *testing.T) string { return writeConfig(t, `{"storage": {"provider": "ftp"}}`) }},
		{"bad batch schedule", func(t *testing.T) string { return writeConfig(t, `{"worker": {"batch_schedule": "every minute"}}`) }},
		{"bad ping schedule", func(t *testing.T) string { return writeConfig(t, `{"worker": {"ping_schedule": "* * *"}}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			if !errors.IsCode(err, errors.CodeConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyPingScheduleDisablesPings(t *testing.T) {
	path := writeConfig(t, `{"worker": {"batch_schedule": "*/2 * * * *", "ping_schedule": ""}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Worker.PingSchedule != "" || cfg.Worker.BatchSchedule != "*/2 * * * *" {
		t.Errorf("unexpected worker config %+v", cfg.Worker)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := Default()
	cfg.StoragePath = "/data"
	cfg.Webhook.URL = "https://hooks.example.com"

	if err := cfg.Write(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.StoragePath != "/data" || got.Webhook.URL != cfg.Webhook.URL || got.Renderer.Timeout != cfg.Renderer.Timeout {
		t.Errorf("Write/Load mismatch: %+v", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PDFBOT_TEST_BOOL", "true")
	t.Setenv("PDFBOT_TEST_INT", "7")
	t.Setenv("PDFBOT_TEST_DUR", "bogus")

	if !BoolEnv("PDFBOT_TEST_BOOL", false) {
		t.Error("BoolEnv")
	}
	if IntEnv("PDFBOT_TEST_INT", 1) != 7 {
		t.Error("IntEnv")
	}
	if DurationEnv("PDFBOT_TEST_DUR", time.Second) != time.Second {
		t.Error("DurationEnv should fall back on invalid input")
	}
	if Env("PDFBOT_TEST_MISSING", "def") != "def" {
		t.Error("Env")
	}
}

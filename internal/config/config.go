// Package config loads pdfbot settings from an optional JSON file overlaid by
// environment variables.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"pdfbot/internal/adapters/storage/gdrive"
	"pdfbot/internal/adapters/storage/s3"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/queue"
	"pdfbot/internal/queue/store"
	"pdfbot/internal/retry"
	"pdfbot/internal/storage"
	"pdfbot/internal/webhook"
	"pdfbot/internal/worker"
)

// DefaultFile is read when present and no path is given.
const DefaultFile = "pdf-bot.config.json"

// Duration reads either a Go duration string ("10m") or milliseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = v
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

type Config struct {
	StoragePath  string         `json:"storage_path"`
	QueueBackend string         `json:"queue_backend"`
	Queue        QueueConfig    `json:"queue"`
	Webhook      WebhookConfig  `json:"webhook"`
	Renderer     RendererConfig `json:"renderer"`
	Storage      StorageConfig  `json:"storage"`
	API          APIConfig      `json:"api"`
	Worker       WorkerConfig   `json:"worker"`
}

type QueueConfig struct {
	GenerationMaxTries int        `json:"generation_max_tries"`
	GenerationSchedule []Duration `json:"generation_schedule"`
	WebhookMaxTries    int        `json:"webhook_max_tries"`
	WebhookSchedule    []Duration `json:"webhook_schedule"`
	Parallelism        int        `json:"parallelism"`
}

type WebhookConfig struct {
	URL             string            `json:"url,omitempty"`
	Method          string            `json:"method,omitempty"`
	Secret          string            `json:"secret,omitempty"`
	HeaderNamespace string            `json:"header_namespace,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Timeout         Duration          `json:"timeout"`
}

type RendererConfig struct {
	BaseURL string         `json:"base_url"`
	Timeout Duration       `json:"timeout"`
	Options map[string]any `json:"options,omitempty"`
}

type StorageConfig struct {
	Provider string       `json:"provider"`
	S3       S3Config     `json:"s3"`
	GDrive   GDriveConfig `json:"gdrive"`
}

type S3Config struct {
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	RemoveLocal     bool   `json:"remove_local"`
}

type GDriveConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	FolderID     string `json:"folder_id,omitempty"`
	RemoveLocal  bool   `json:"remove_local"`
}

type APIConfig struct {
	Port  string `json:"port"`
	Token string `json:"token,omitempty"`
}

type WorkerConfig struct {
	RedisAddr     string   `json:"redis_addr,omitempty"`
	QueueName     string   `json:"queue_name"`
	BatchSchedule string   `json:"batch_schedule"`
	PingSchedule  string   `json:"ping_schedule"`
	WakeTimeout   Duration `json:"wake_timeout"`
}

func durations(ds []time.Duration) []Duration {
	out := make([]Duration, len(ds))
	for i, d := range ds {
		out[i] = Duration{d}
	}
	return out
}

func Default() *Config {
	return &Config{
		StoragePath:  "./storage",
		QueueBackend: store.KindJSON,
		Queue: QueueConfig{
			GenerationMaxTries: retry.DefaultMaxTries,
			GenerationSchedule: durations(retry.DefaultSchedule()),
			WebhookMaxTries:    retry.DefaultMaxTries,
			WebhookSchedule:    durations(retry.DefaultSchedule()),
			Parallelism:        4,
		},
		Webhook: WebhookConfig{
			Method:          webhook.DefaultMethod,
			HeaderNamespace: webhook.DefaultHeaderNamespace,
			Timeout:         Duration{webhook.DefaultTimeout},
		},
		Renderer: RendererConfig{
			BaseURL: "http://localhost:9000",
			Timeout: Duration{10 * time.Minute},
		},
		// remote plugins clean up tmp/ after a successful upload
		Storage: StorageConfig{
			Provider: "local",
			S3:       S3Config{RemoveLocal: true},
			GDrive:   GDriveConfig{RemoveLocal: true},
		},
		API: APIConfig{Port: "3000"},
		Worker: WorkerConfig{
			QueueName:     "pdfbot:jobs",
			BatchSchedule: "@every 1m",
			PingSchedule:  "@every 5m",
			WakeTimeout:   Duration{5 * time.Second},
		},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "config.load", "parse "+path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "config.load", "read "+path)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.StoragePath = Env("STORAGE_PATH", c.StoragePath)
	c.QueueBackend = Env("QUEUE_BACKEND", c.QueueBackend)

	c.Queue.GenerationMaxTries = IntEnv("GENERATION_MAX_TRIES", c.Queue.GenerationMaxTries)
	c.Queue.GenerationSchedule = scheduleEnv("GENERATION_SCHEDULE", c.Queue.GenerationSchedule)
	c.Queue.WebhookMaxTries = IntEnv("WEBHOOK_MAX_TRIES", c.Queue.WebhookMaxTries)
	c.Queue.WebhookSchedule = scheduleEnv("WEBHOOK_SCHEDULE", c.Queue.WebhookSchedule)
	c.Queue.Parallelism = IntEnv("PARALLELISM", c.Queue.Parallelism)

	c.Webhook.URL = Env("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = Env("WEBHOOK_SECRET", c.Webhook.Secret)
	c.Webhook.Method = Env("WEBHOOK_METHOD", c.Webhook.Method)
	c.Webhook.HeaderNamespace = Env("WEBHOOK_HEADER_NAMESPACE", c.Webhook.HeaderNamespace)
	c.Webhook.Headers = mapEnv("WEBHOOK_HEADERS", c.Webhook.Headers)
	c.Webhook.Timeout.Duration = DurationEnv("WEBHOOK_TIMEOUT", c.Webhook.Timeout.Duration)

	c.Renderer.BaseURL = Env("RENDERER_HTTP_BASEURL", c.Renderer.BaseURL)
	c.Renderer.Timeout.Duration = DurationEnv("RENDERER_TIMEOUT", c.Renderer.Timeout.Duration)

	c.Storage.Provider = Env("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.S3.AccessKeyID = Env("S3_ACCESS_KEY_ID", c.Storage.S3.AccessKeyID)
	c.Storage.S3.SecretAccessKey = Env("S3_SECRET_ACCESS_KEY", c.Storage.S3.SecretAccessKey)
	c.Storage.S3.Region = Env("S3_REGION", c.Storage.S3.Region)
	c.Storage.S3.Bucket = Env("S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.Endpoint = Env("S3_ENDPOINT", c.Storage.S3.Endpoint)
	c.Storage.S3.Prefix = Env("S3_PREFIX", c.Storage.S3.Prefix)
	c.Storage.S3.RemoveLocal = BoolEnv("S3_REMOVE_LOCAL", c.Storage.S3.RemoveLocal)
	c.Storage.GDrive.ClientID = Env("GDRIVE_CLIENT_ID", c.Storage.GDrive.ClientID)
	c.Storage.GDrive.ClientSecret = Env("GDRIVE_CLIENT_SECRET", c.Storage.GDrive.ClientSecret)
	c.Storage.GDrive.RefreshToken = Env("GDRIVE_REFRESH_TOKEN", c.Storage.GDrive.RefreshToken)
	c.Storage.GDrive.FolderID = Env("GDRIVE_FOLDER_ID", c.Storage.GDrive.FolderID)
	c.Storage.GDrive.RemoveLocal = BoolEnv("GDRIVE_REMOVE_LOCAL", c.Storage.GDrive.RemoveLocal)

	c.API.Port = Env("API_PORT", c.API.Port)
	c.API.Token = Env("API_TOKEN", c.API.Token)

	c.Worker.RedisAddr = Env("REDIS_ADDR", c.Worker.RedisAddr)
	c.Worker.QueueName = Env("JOB_QUEUE_NAME", c.Worker.QueueName)
	c.Worker.BatchSchedule = Env("WORKER_BATCH_SCHEDULE", c.Worker.BatchSchedule)
	c.Worker.PingSchedule = Env("WORKER_PING_SCHEDULE", c.Worker.PingSchedule)
}

// Validate reports the first misconfiguration found.
func (c *Config) Validate() error {
	switch {
	case c.StoragePath == "":
		return errors.Configuration("storage_path is required")
	case c.QueueBackend != store.KindJSON && c.QueueBackend != store.KindSQLite:
		return errors.Configurationf("queue_backend must be %s or %s, got %q", store.KindJSON, store.KindSQLite, c.QueueBackend)
	case c.Queue.GenerationMaxTries < 1:
		return errors.Configuration("queue.generation_max_tries must be at least 1")
	case c.Queue.WebhookMaxTries < 1:
		return errors.Configuration("queue.webhook_max_tries must be at least 1")
	case c.Queue.Parallelism < 1:
		return errors.Configuration("queue.parallelism must be at least 1")
	case c.Renderer.BaseURL == "":
		return errors.Configuration("renderer.base_url is required")
	}

	switch c.Storage.Provider {
	case "local", "localfs", "s3", "gdrive":
	default:
		return errors.Configurationf("unknown storage provider: %s", c.Storage.Provider)
	}
	for _, d := range append(append([]Duration{}, c.Queue.GenerationSchedule...), c.Queue.WebhookSchedule...) {
		if d.Duration < 0 {
			return errors.Configuration("retry schedules cannot contain negative delays")
		}
	}

	if err := worker.ValidateSchedule(c.Worker.BatchSchedule); err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "config.validate", "worker.batch_schedule")
	}
	// an empty ping schedule disables ping retries
	if c.Worker.PingSchedule != "" {
		if err := worker.ValidateSchedule(c.Worker.PingSchedule); err != nil {
			return errors.WrapWithCode(err, errors.CodeConfiguration, "config.validate", "worker.ping_schedule")
		}
	}
	return nil
}

func schedule(ds []Duration) retry.DecaySchedule {
	out := make(retry.DecaySchedule, len(ds))
	for i, d := range ds {
		out[i] = d.Duration
	}
	return out
}

func (c *Config) GenerationPolicy() retry.Policy {
	return retry.Policy{Strategy: schedule(c.Queue.GenerationSchedule), MaxTries: c.Queue.GenerationMaxTries}
}

func (c *Config) PingPolicy() retry.Policy {
	return retry.Policy{Strategy: schedule(c.Queue.WebhookSchedule), MaxTries: c.Queue.WebhookMaxTries}
}

func (c *Config) Layout() queue.Layout {
	return queue.Layout{Root: c.StoragePath}
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Provider: c.Storage.Provider,
		PDFDir:   c.Layout().PDFDir(),
		S3: s3.Config{
			AccessKeyID:     c.Storage.S3.AccessKeyID,
			SecretAccessKey: c.Storage.S3.SecretAccessKey,
			Region:          c.Storage.S3.Region,
			Bucket:          c.Storage.S3.Bucket,
			Endpoint:        c.Storage.S3.Endpoint,
			Prefix:          c.Storage.S3.Prefix,
			RemoveLocal:     c.Storage.S3.RemoveLocal,
		},
		GDrive: gdrive.Config{
			ClientID:     c.Storage.GDrive.ClientID,
			ClientSecret: c.Storage.GDrive.ClientSecret,
			RefreshToken: c.Storage.GDrive.RefreshToken,
			FolderID:     c.Storage.GDrive.FolderID,
			RemoveLocal:  c.Storage.GDrive.RemoveLocal,
		},
	}
}

// WebhookEnabled reports whether a webhook url is configured.
func (c *Config) WebhookEnabled() bool {
	return c.Webhook.URL != ""
}

func (c *Config) WebhookConfig() webhook.Config {
	return webhook.Config{
		URL:             c.Webhook.URL,
		Method:          c.Webhook.Method,
		Secret:          c.Webhook.Secret,
		HeaderNamespace: c.Webhook.HeaderNamespace,
		Headers:         c.Webhook.Headers,
		Timeout:         c.Webhook.Timeout.Duration,
	}
}

// Write stores c as indented JSON at path.
func (c *Config) Write(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "config.write", "encode config")
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "config.write", "write "+path)
	}
	return nil
}

// Package webhook notifies an external consumer that a job finished.
//
// Each Send is exactly one HTTP request; retries are driven by the queue's
// ping schedule so that every attempt is recorded as a Ping on the job.
// When a secret is configured the body is signed with HMAC-SHA1 and the hex
// digest is sent in the <namespace>Signature header.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

const (
	DefaultMethod          = http.MethodPost
	DefaultHeaderNamespace = "X-PDF-"
	DefaultTimeout         = 10 * time.Second

	// responseLimit bounds the body summary kept on the ping.
	responseLimit = 2 << 10
)

type Config struct {
	URL             string
	Method          string
	Secret          string
	HeaderNamespace string
	Headers         map[string]string
	Timeout         time.Duration
}

// Payload is the JSON body of every delivery.
type Payload struct {
	ID        string           `json:"id"`
	URL       string           `json:"url"`
	Meta      map[string]any   `json:"meta"`
	Location  *models.Location `json:"location"`
	Timestamp int64            `json:"timestamp"`
}

type Dispatcher struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New validates cfg and fills in defaults.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if cfg.URL == "" {
		return nil, errors.Configuration("webhook: url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Configurationf("webhook: invalid url %q", cfg.URL)
	}
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.HeaderNamespace == "" {
		cfg.HeaderNamespace = DefaultHeaderNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Dispatcher) URL() string { return d.cfg.URL }

// Send delivers one notification for job and describes the attempt. It never
// returns an error: transport failures are reported as Status 0 with Error set.
func (d *Dispatcher) Send(ctx context.Context, job *models.Job) models.Ping {
	now := d.now().UTC()
	ping := models.Ping{
		ID:     uuid.NewString(),
		URL:    d.cfg.URL,
		Method: d.cfg.Method,
		SentAt: now,
	}

	payload := Payload{
		ID:        job.ID,
		URL:       job.URL,
		Meta:      job.Meta,
		Timestamp: now.UnixMilli(),
	}
	if g := job.SuccessfulGeneration(); g != nil {
		payload.Location = g.Location
	}

	body, err := json.Marshal(payload)
	if err != nil {
		ping.Error = errors.WrapWithCode(err, errors.CodeDelivery, "webhook.send", "encode payload").Error()
		return ping
	}
	ping.Payload = body

	req, err := http.NewRequestWithContext(ctx, d.cfg.Method, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		ping.Error = errors.WrapWithCode(err, errors.CodeDelivery, "webhook.send", "build request").Error()
		return ping
	}
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.Secret != "" {
		ns := d.cfg.HeaderNamespace
		req.Header.Set(ns+"Signature", Sign(body, d.cfg.Secret))
		req.Header.Set(ns+"Timestamp", strconv.FormatInt(payload.Timestamp, 10))
		req.Header.Set(ns+"Transaction", ping.ID)
	}

	res, err := d.client.Do(req)
	if err != nil {
		ping.Error = errors.WrapWithCode(err, errors.CodeDelivery, "webhook.send", "request failed").Error()
		return ping
	}
	defer res.Body.Close()

	summary, _ := io.ReadAll(io.LimitReader(res.Body, responseLimit))
	ping.Status = res.StatusCode
	ping.Response = string(summary)
	return ping
}

// Sign returns the hex HMAC-SHA1 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(body []byte, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Package renderer talks to the headless-browser render service.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	v0 "pdfbot/internal/contracts/renderer/v0"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
)

// Renderer turns a URL into a local PDF file and returns its path.
type Renderer interface {
	Render(ctx context.Context, url string, opts map[string]any) (string, error)
}

const DefaultTimeout = 10 * time.Minute

type HTTPClient struct {
	baseURL string
	tmpDir  string
	client  *http.Client
}

// NewHTTPClient writes rendered files into tmpDir. A zero timeout means
// DefaultTimeout.
func NewHTTPClient(baseURL, tmpDir string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		tmpDir:  tmpDir,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Render(ctx context.Context, url string, opts map[string]any) (string, error) {
	body, err := json.Marshal(v0.RenderRequest{
		URL:     url,
		Options: opts,
		JobID:   logger.JobIDFromContext(ctx),
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "renderer.render", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "renderer.render", "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	res, err := c.client.Do(req)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "renderer.render", "renderer unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", errors.Newf(errors.CodeRender, "renderer http %d: %s", res.StatusCode, bytes.TrimSpace(msg)).
			WithField("status", res.StatusCode)
	}

	if err := os.MkdirAll(c.tmpDir, 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "renderer.render", "create tmp directory")
	}
	dst := filepath.Join(c.tmpDir, uuid.NewString()+".pdf")
	if err := writeFile(dst, res.Body); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeRender, "renderer.render", fmt.Sprintf("write %s", dst))
	}
	return dst, nil
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty response body")
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}

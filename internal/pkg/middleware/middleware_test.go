package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pdfbot/internal/httpkit"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
)

func newTestLogger(buf *bytes.Buffer, level string) *logger.Logger {
	return logger.New(logger.Config{Level: level, Format: "json", Output: buf})
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := r.Context().Value(logger.RequestIDKey).(string); id == "" {
			t.Error("expected request ID in context")
		}
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs", nil))

		if len(rec.Header().Get(RequestIDHeader)) != 36 {
			t.Errorf("expected a uuid request ID, got %q", rec.Header().Get(RequestIDHeader))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/jobs", nil)
		req.Header.Set(RequestIDHeader, "existing-id-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "existing-id-123" {
			t.Errorf("expected preserved request ID, got %s", got)
		}
	})
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedLevel string
	}{
		{"2xx logs info", 200, "INFO"},
		{"4xx logs warn", 422, "WARN"},
		{"5xx logs error", 503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Logging(newTestLogger(&buf, "debug"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte("body"))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))

			out := buf.String()
			if !strings.Contains(out, `"level":"`+tt.expectedLevel+`"`) {
				t.Errorf("expected level %s, got %s", tt.expectedLevel, out)
			}
			if !strings.Contains(out, "request completed") || !strings.Contains(out, "duration_ms") {
				t.Errorf("missing fields in %s", out)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(newTestLogger(&buf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("renderer exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic to be logged, got %s", buf.String())
	}
}

func TestBearerAuth(t *testing.T) {
	var buf bytes.Buffer
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusNoContent},
		{"valid", "s3cret", "Bearer s3cret", http.StatusNoContent},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerAuth(tt.token, newTestLogger(&buf, "error"))(ok).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWrapHandler(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, "debug")

	handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
		return errors.NotFound("job", "abc")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs/abc", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var env httpkit.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "NOT_FOUND" || env.Error.Details["id"] != "abc" {
		t.Errorf("envelope = %+v", env.Error)
	}
	if !strings.Contains(buf.String(), "request error") {
		t.Errorf("expected a warn log, got %s", buf.String())
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	rw.Write([]byte("hello"))

	if rw.status != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d/%d, want the first WriteHeader to win", rw.status, rec.Code)
	}
	if rw.size != 5 {
		t.Errorf("size = %d, want 5", rw.size)
	}
}

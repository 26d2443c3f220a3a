package httpkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"pdfbot/internal/pkg/errors"
)

type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details
	WriteJSON(w, status, env)
}

// WriteError writes err with the status its code maps to. Internal failures
// hide their message.
func WriteError(w http.ResponseWriter, err error) {
	status := errors.GetHTTPStatus(err)
	msg := err.Error()
	if status >= 500 && errors.GetCode(err) == errors.CodeInternal {
		msg = "internal server error"
	}
	WriteErr(w, status, string(errors.GetCode(err)), msg, errors.GetFields(err))
}

// QueryInt reads a positive integer query parameter, clamped to max.
func QueryInt(r *http.Request, key string, def, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// QueryBool reads a boolean query parameter; a bare "?failed" counts as true.
func QueryBool(r *http.Request, key string) bool {
	q := r.URL.Query()
	if !q.Has(key) {
		return false
	}
	raw := q.Get(key)
	if raw == "" {
		return true
	}
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

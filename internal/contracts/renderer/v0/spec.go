package v0

// RenderRequest is the body POSTed to <base>/render. The renderer answers
// with the PDF bytes (application/pdf) or a non-2xx status.
//   - url: page to print
//   - options: renderer-specific settings forwarded verbatim (format, margins, waits)
//   - job_id: correlation only, the renderer must not depend on it
type RenderRequest struct {
	URL     string         `json:"url"`
	Options map[string]any `json:"options,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
}

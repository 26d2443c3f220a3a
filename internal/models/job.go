package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived lifecycle state of a Job. It is never stored.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Job is a queued request to render a URL to a PDF and track its outcome.
// Only Generations, Pings and CompletedAt ever change after creation.
type Job struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	Meta        map[string]any `json:"meta"`
	Generations []Generation   `json:"generations"`
	Pings       []Ping         `json:"pings"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at"`
}

// NewJob returns a job with a fresh id and empty histories.
func NewJob(url string, meta map[string]any, now time.Time) *Job {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Job{
		ID:          uuid.NewString(),
		URL:         url,
		Meta:        meta,
		Generations: []Generation{},
		Pings:       []Ping{},
		CreatedAt:   now.UTC(),
	}
}

// Completed reports whether a generation has succeeded.
func (j *Job) Completed() bool {
	return j.CompletedAt != nil
}

// Failed reports whether the job exhausted maxTries without a success.
func (j *Job) Failed(maxTries int) bool {
	return !j.Completed() && len(j.Generations) >= maxTries
}

// Status derives the lifecycle state against the generation ceiling.
func (j *Job) Status(maxTries int) Status {
	switch {
	case j.Completed():
		return StatusCompleted
	case len(j.Generations) == 0:
		return StatusNew
	case j.Failed(maxTries):
		return StatusFailed
	default:
		return StatusPending
	}
}

// SuccessfulGeneration returns the successful generation, if any.
func (j *Job) SuccessfulGeneration() *Generation {
	for i := range j.Generations {
		if j.Generations[i].Success {
			return &j.Generations[i]
		}
	}
	return nil
}

// HasSuccessfulPing reports whether any webhook delivery was accepted.
func (j *Job) HasSuccessfulPing() bool {
	for i := range j.Pings {
		if j.Pings[i].Succeeded() {
			return true
		}
	}
	return false
}

// GenerationAttempts returns the attempt timestamps in order.
func (j *Job) GenerationAttempts() []time.Time {
	out := make([]time.Time, len(j.Generations))
	for i, g := range j.Generations {
		out[i] = g.AttemptedAt
	}
	return out
}

// PingAttempts returns the ping timestamps in order.
func (j *Job) PingAttempts() []time.Time {
	out := make([]time.Time, len(j.Pings))
	for i, p := range j.Pings {
		out[i] = p.SentAt
	}
	return out
}

// Clone returns a deep copy so callers never share slices with the document.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Meta = cloneMap(j.Meta)
	c.Generations = append([]Generation{}, j.Generations...)
	for i := range c.Generations {
		if loc := c.Generations[i].Location; loc != nil {
			l := *loc
			c.Generations[i].Location = &l
		}
	}
	c.Pings = append([]Ping{}, j.Pings...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

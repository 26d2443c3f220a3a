package models

import (
	"encoding/json"
	"time"
)

// Ping is one webhook delivery attempt. Status is the HTTP status code, or
// 0 with Error set when the request never got a response.
type Ping struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	Method   string          `json:"method"`
	Status   int             `json:"status"`
	Error    string          `json:"error,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
	Response string          `json:"response,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Succeeded reports whether the receiver accepted the delivery.
func (p Ping) Succeeded() bool {
	return p.Error == "" && p.Status >= 200 && p.Status < 300
}

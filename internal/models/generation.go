package models

import "time"

// Generation is one render-and-store attempt.
type Generation struct {
	ID          string    `json:"id"`
	AttemptedAt time.Time `json:"attempted_at"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Location    *Location `json:"location,omitempty"`
}

// Location describes where a storage plugin durably placed an artifact.
// Which fields are set depends on Provider.
type Location struct {
	Provider string `json:"provider"`
	Path     string `json:"path,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Region   string `json:"region,omitempty"`
	Key      string `json:"key,omitempty"`
	FileID   string `json:"file_id,omitempty"`
}

// String renders the location for CLI tables and logs.
func (l Location) String() string {
	switch {
	case l.Key != "":
		return l.Provider + "://" + l.Bucket + "/" + l.Key
	case l.FileID != "":
		return l.Provider + "://" + l.FileID
	default:
		return l.Path
	}
}

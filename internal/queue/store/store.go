// Package store persists the queue document: the ordered job list and the
// busy flag. Backends load and replace whole documents. Update holds a lock
// shared with every other process on the same document from load to save,
// so the api, the worker and CLI commands can write concurrently.
package store

import (
	"context"
	"path/filepath"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

// Document is the single durable state of the queue.
type Document struct {
	Queue  []*models.Job `json:"queue"`
	IsBusy bool          `json:"is_busy"`
}

// Find returns the index of the job with the given id, or -1.
func (d *Document) Find(id string) int {
	for i, j := range d.Queue {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func emptyDocument() *Document {
	return &Document{Queue: []*models.Job{}}
}

// UpdateFunc mutates the freshly loaded document. Returning an error
// discards the change.
type UpdateFunc func(doc *Document) error

// Backend loads the document and applies read-modify-write updates to it.
type Backend interface {
	Load(ctx context.Context) (*Document, error)
	Update(ctx context.Context, fn UpdateFunc) error
	Close() error
}

const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// Open returns the backend of the given kind rooted in dbDir.
func Open(kind, dbDir string) (Backend, error) {
	switch kind {
	case "", KindJSON:
		return NewFileBackend(filepath.Join(dbDir, "db.json")), nil
	case KindSQLite:
		return NewSQLiteBackend(filepath.Join(dbDir, "db.sqlite"))
	default:
		return nil, errors.Configurationf("unknown queue backend: %s", kind)
	}
}

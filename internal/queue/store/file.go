package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"pdfbot/internal/pkg/errors"
)

const lockRetryDelay = 10 * time.Millisecond

// FileBackend keeps the document as a JSON file. Saves go through a temp
// file and a rename so readers never observe a half-written document.
// Updates hold an advisory lock on <path>.lock across load and save.
type FileBackend struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, lock: flock.New(path + ".lock")}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(_ context.Context) (*Document, error) {
	raw, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, errors.Persistence(err, "store.load", "read queue document")
	}
	if len(raw) == 0 {
		return emptyDocument(), nil
	}

	doc := emptyDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, errors.Persistence(err, "store.load", "decode queue document").WithField("path", b.path)
	}
	if doc.Queue == nil {
		doc.Queue = emptyDocument().Queue
	}
	return doc, nil
}

func (b *FileBackend) Save(_ context.Context, doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Persistence(err, "store.save", "encode queue document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".db-*.json")
	if err != nil {
		return errors.Persistence(err, "store.save", "create temp document")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Persistence(err, "store.save", "write temp document")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Persistence(err, "store.save", "sync temp document")
	}
	if err := tmp.Close(); err != nil {
		return errors.Persistence(err, "store.save", "close temp document")
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return errors.Persistence(err, "store.save", "replace queue document").WithField("path", b.path)
	}
	return nil
}

// Update runs fn on the current document and saves the result while holding
// the exclusive lock, so writers in other processes wait instead of
// overwriting each other.
func (b *FileBackend) Update(ctx context.Context, fn UpdateFunc) error {
	// flock tracks ownership per handle, not per goroutine
	b.mu.Lock()
	defer b.mu.Unlock()

	locked, err := b.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return errors.Persistence(err, "store.update", "lock queue document").WithField("path", b.lock.Path())
	}
	if !locked {
		return errors.Persistence(ctx.Err(), "store.update", "lock queue document").WithField("path", b.lock.Path())
	}
	defer b.lock.Unlock()

	doc, err := b.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return b.Save(ctx, doc)
}

func (b *FileBackend) Close() error { return b.lock.Close() }

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pdfbot/internal/pkg/errors"
)

const documentName = "queue"

// SQLiteBackend stores the document as a single JSON row. WAL mode lets the
// API read while a batch run is writing. Transactions start IMMEDIATE, so an
// Update takes the write lock before it reads and concurrent writers queue
// on busy_timeout instead of losing each other's changes.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, errors.Persistence(err, "store.open", "open sqlite database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Persistence(err, "store.open", "ping sqlite database").WithField("path", path)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, errors.Persistence(err, "store.open", "initialize schema")
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (b *SQLiteBackend) Load(ctx context.Context) (*Document, error) {
	return load(ctx, b.db)
}

// Update loads, mutates and saves inside one write transaction.
func (b *SQLiteBackend) Update(ctx context.Context, fn UpdateFunc) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Persistence(err, "store.update", "begin transaction")
	}
	defer tx.Rollback()

	doc, err := load(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := save(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Persistence(err, "store.update", "commit transaction")
	}
	return nil
}

func load(ctx context.Context, q querier) (*Document, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, documentName).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, errors.Persistence(err, "store.load", "query queue document")
	}

	doc := emptyDocument()
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		return nil, errors.Persistence(err, "store.load", "decode queue document")
	}
	if doc.Queue == nil {
		doc.Queue = emptyDocument().Queue
	}
	return doc, nil
}

func save(ctx context.Context, q querier, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Persistence(err, "store.save", "encode queue document")
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, documentName, string(raw), time.Now().Unix())
	if err != nil {
		return errors.Persistence(err, "store.save", "write queue document")
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

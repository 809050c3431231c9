package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps SQLite database operations
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database
func Open(path string) (*DB, error) {
	connStr := path
	if path == ":memory:" {
		// Shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		// WAL mode for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}

	storage := &DB{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// EnsureCollection registers a collection name if it doesn't exist yet
func (d *DB) EnsureCollection(ctx context.Context, name string) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC(),
	)
	return err
}

// Collections lists registered collection names
func (d *DB) Collections(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Upsert inserts or replaces a document
func (d *DB) Upsert(ctx context.Context, doc *Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
	INSERT INTO documents (collection, id, content, metadata, embedding, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		content = excluded.content,
		metadata = excluded.metadata,
		embedding = excluded.embedding,
		updated_at = excluded.updated_at
	`

	_, err = d.db.ExecContext(ctx, query,
		doc.Collection, doc.ID, doc.Content, string(meta), doc.Embedding, doc.UpdatedAt,
	)
	return err
}

// Get retrieves a document by ID, returning nil when it doesn't exist
func (d *DB) Get(ctx context.Context, collection, id string) (*Document, error) {
	query := `
	SELECT collection, id, content, metadata, embedding, updated_at
	FROM documents
	WHERE collection = ? AND id = ?
	`

	doc, err := scanDocument(d.db.QueryRowContext(ctx, query, collection, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// GetMany retrieves the documents with the given IDs in request order.
// IDs that don't exist are skipped.
func (d *DB) GetMany(ctx context.Context, collection string, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
	SELECT collection, id, content, metadata, embedding, updated_at
	FROM documents
	WHERE collection = ? AND id IN (` + placeholders(len(ids)) + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}

	found, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Document, len(found))
	for _, doc := range found {
		byID[doc.ID] = doc
	}

	docs := make([]*Document, 0, len(found))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
			delete(byID, id) // duplicate ids in the request yield one document
		}
	}
	return docs, nil
}

// List retrieves all documents of a collection, oldest update first
func (d *DB) List(ctx context.Context, collection string) ([]*Document, error) {
	query := `
	SELECT collection, id, content, metadata, embedding, updated_at
	FROM documents
	WHERE collection = ?
	ORDER BY updated_at ASC, id ASC
	`
	return d.query(ctx, query, collection)
}

// Delete removes documents by ID and returns how many rows were removed
func (d *DB) Delete(ctx context.Context, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of documents in a collection
func (d *DB) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection,
	).Scan(&count)
	return count, err
}

func (d *DB) query(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	doc := &Document{}
	var meta string
	if err := row.Scan(
		&doc.Collection, &doc.ID, &doc.Content, &meta, &doc.Embedding, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", doc.ID, err)
		}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	return doc, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

package storage

import "time"

// Document is a single row of a named vector collection
type Document struct {
	Collection string            `db:"collection"`
	ID         string            `db:"id"`
	Content    string            `db:"content"`   // Text handed to the embedder (already truncated)
	Metadata   map[string]string `db:"metadata"`  // JSON object of exact-match fields
	Embedding  []byte            `db:"embedding"` // Vector embedding (BLOB), little-endian float32
	UpdatedAt  time.Time         `db:"updated_at"`
}

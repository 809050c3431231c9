// Package vectorindex stores documents with metadata in named collections and
// answers nearest-neighbour queries by cosine distance over their embeddings.
package vectorindex

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/renderinc/briefing/internal/storage"
)

// Metadata holds exact-match fields stored alongside a document
type Metadata map[string]string

// Record is a document returned from a collection
type Record struct {
	ID       string
	Document string
	Metadata Metadata

	// Distance is the cosine distance to the query, in [0, 2].
	// Only set on Query results; HasDistance reports whether it is meaningful.
	Distance    float32
	HasDistance bool
}

// Index is the contract the archive relies on. Put overwrites on conflict.
type Index interface {
	Put(ctx context.Context, id, text string, metadata Metadata) error
	Query(ctx context.Context, text string, k int, filter *Filter) ([]Record, error)
	Get(ctx context.Context, ids ...string) ([]Record, error)
	Delete(ctx context.Context, ids ...string) error
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// Filter constrains query candidates by metadata.
// Equals requires exact values; Contains requires the value to contain the substring.
type Filter struct {
	Equals   map[string]string
	Contains map[string]string
}

// Empty reports whether the filter has no constraints
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Equals) == 0 && len(f.Contains) == 0)
}

// Match reports whether metadata satisfies every constraint
func (f *Filter) Match(md Metadata) bool {
	if f.Empty() {
		return true
	}
	for k, want := range f.Equals {
		if md[k] != want {
			return false
		}
	}
	for k, sub := range f.Contains {
		if !strings.Contains(md[k], sub) {
			return false
		}
	}
	return true
}

// Store owns the SQLite database and hands out collections
type Store struct {
	db          *storage.DB
	embedder    embeddings.Embedder
	logger      *log.Logger
	mu          sync.Mutex
	collections map[string]*Collection
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for degraded-index warnings
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (or creates) the SQLite file at path
func Open(path string, embedder embeddings.Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("open vector store: embedder is required")
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	s := &Store{
		db:          db,
		embedder:    embedder,
		logger:      log.New(io.Discard),
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Collection gets or creates a named collection and loads its graph
func (s *Store) Collection(ctx context.Context, name string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	if err := s.db.EnsureCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	c := newCollection(name, s.db, s.embedder, s.logger.WithPrefix(name))
	if err := c.load(ctx); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}

	s.collections[name] = c
	return c, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

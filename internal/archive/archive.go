// Package archive is the content archive: two bounded collections (items and
// digest snapshots) over a vector index, with deterministic content ids,
// age and size retention, and similarity search.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/renderinc/briefing/internal/metrics"
	"github.com/renderinc/briefing/internal/search"
	"github.com/renderinc/briefing/internal/vectorindex"
)

// ErrNotInitialized is returned by reads before Init succeeds
var ErrNotInitialized = errors.New("archive not initialized")

const warmupID = "__warmup__"

// Archive owns the item and digest collections
type Archive struct {
	cfg      Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	embedder embeddings.Embedder
	now      func() time.Time

	mu       sync.RWMutex
	store    *vectorindex.Store
	items    vectorindex.Index
	digests  vectorindex.Index
	keywords *search.Index // nil when disabled
}

// New creates an archive; call Init before use
func New(cfg Config, opts ...Option) *Archive {
	a := &Archive{
		cfg:    cfg.withDefaults(),
		logger: defaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.embedder == nil {
		a.embedder = embeddings.NewHashEmbedder(embeddings.DefaultHashDimensions)
	}
	return a
}

// Config returns the effective configuration
func (a *Archive) Config() Config {
	return a.cfg
}

// Init opens storage and runs one retention sweep. A second call is a no-op.
func (a *Archive) Init(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		a.logger.Debug("Archive already initialized")
		return nil
	}

	start := time.Now()
	defer func() { a.metrics.Observe("init", err, time.Since(start)) }()

	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	// 1. Storage location
	if err := os.MkdirAll(a.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	// 2. Vector store and collections
	store, err := vectorindex.Open(filepath.Join(a.cfg.Dir, "archive.db"), a.embedder,
		vectorindex.WithLogger(a.logger.WithPrefix("vectorindex")))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	items, err := store.Collection(ctx, ItemCollection)
	if err != nil {
		store.Close()
		return fmt.Errorf("open %s: %w", ItemCollection, err)
	}
	digests, err := store.Collection(ctx, DigestCollection)
	if err != nil {
		store.Close()
		return fmt.Errorf("open %s: %w", DigestCollection, err)
	}

	// 3. Embedding warm-up
	if a.cfg.Warmup {
		for _, c := range []vectorindex.Index{items, digests} {
			if err := warmup(ctx, c); err != nil {
				store.Close()
				return fmt.Errorf("warm up embeddings: %w", err)
			}
		}
		a.logger.Debug("Embeddings warmed up")
	}

	// 4. Keyword index, rebuilt from the item collection
	var keywords *search.Index
	if a.cfg.KeywordIndex {
		keywords, err = search.Open(filepath.Join(a.cfg.Dir, "items.bleve"))
		if err != nil {
			store.Close()
			return fmt.Errorf("open keyword index: %w", err)
		}
		if err := rebuildKeywords(ctx, items, keywords); err != nil {
			keywords.Close()
			store.Close()
			return fmt.Errorf("rebuild keyword index: %w", err)
		}
	}

	a.store = store
	a.items = items
	a.digests = digests
	a.keywords = keywords

	// 5. Initial retention sweep
	res := a.sweep(ctx, items, digests, keywords)
	a.logger.Info("Archive initialized", "dir", a.cfg.Dir,
		"evicted", res.ItemsAgeEvicted+res.ItemsSizeEvicted+res.DigestsAgeEvicted+res.DigestsSizeEvicted)
	return nil
}

func warmup(ctx context.Context, c vectorindex.Index) error {
	if err := c.Put(ctx, warmupID, "warmup", vectorindex.Metadata{"type": "warmup"}); err != nil {
		return err
	}
	return c.Delete(ctx, warmupID)
}

func rebuildKeywords(ctx context.Context, items vectorindex.Index, keywords *search.Index) error {
	records, err := items.ListAll(ctx)
	if err != nil {
		return err
	}
	docs := make([]*search.Document, len(records))
	for i, rec := range records {
		docs[i] = keywordDocument(rec.ID, rec.Document, rec.Metadata)
	}
	return keywords.Rebuild(docs)
}

// Close releases storage; the archive may be initialized again afterwards
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return nil
	}

	var errs []error
	if a.keywords != nil {
		errs = append(errs, a.keywords.Close())
	}
	errs = append(errs, a.store.Close())

	a.store, a.items, a.digests, a.keywords = nil, nil, nil, nil
	return errors.Join(errs...)
}

// Initialized reports whether Init has succeeded
func (a *Archive) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store != nil
}

// handles returns the open collections or ErrNotInitialized
func (a *Archive) handles() (items, digests vectorindex.Index, keywords *search.Index, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return nil, nil, nil, ErrNotInitialized
	}
	return a.items, a.digests, a.keywords, nil
}

// Counts returns the size of both collections
func (a *Archive) Counts(ctx context.Context) (items, digests int, err error) {
	itemIdx, digestIdx, _, err := a.handles()
	if err != nil {
		return 0, 0, err
	}
	if items, err = itemIdx.Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("count items: %w", err)
	}
	if digests, err = digestIdx.Count(ctx); err != nil {
		return 0, 0, fmt.Errorf("count digests: %w", err)
	}
	return items, digests, nil
}

// EmbedderHealth checks the embedding provider
func (a *Archive) EmbedderHealth(ctx context.Context) error {
	return a.embedder.Health(ctx)
}

func (a *Archive) observe(op string, start time.Time, err error) {
	a.metrics.Observe(op, err, time.Since(start))
}

func (a *Archive) recordSize(ctx context.Context, name string, c vectorindex.Index) {
	if a.metrics == nil {
		return
	}
	if n, err := c.Count(ctx); err == nil {
		a.metrics.SetCollectionSize(name, n)
	}
}

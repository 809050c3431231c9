package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/hnsw"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/renderinc/briefing/internal/storage"
)

// Ensure Collection implements Index interface at compile time
var _ Index = (*Collection)(nil)

// Collection is one named set of documents. Rows live in SQLite; the HNSW
// graph is an in-memory accelerator rebuilt on load. When the graph cannot
// answer (filters, dimension changes, panics) queries scan SQLite instead.
type Collection struct {
	name     string
	db       *storage.DB
	embedder embeddings.Embedder
	logger   *log.Logger

	mu    sync.RWMutex // protects graph
	graph *hnsw.Graph[string]
	dims  int
}

func newCollection(name string, db *storage.DB, embedder embeddings.Embedder, logger *log.Logger) *Collection {
	return &Collection{
		name:     name,
		db:       db,
		embedder: embedder,
		logger:   logger,
		graph:    newGraph(),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	return g
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// load rebuilds the graph from stored embeddings
func (c *Collection) load(ctx context.Context) error {
	docs, err := c.db.List(ctx, c.name)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range docs {
		vec := embeddings.DeserializeEmbedding(doc.Embedding)
		if vec == nil {
			continue
		}
		c.addLocked(doc.ID, vec)
	}

	c.logger.Debug("Collection loaded", "documents", len(docs), "graph", c.graphLen())
	return nil
}

// Put embeds text and stores it under id, replacing any existing document
func (c *Collection) Put(ctx context.Context, id, text string, metadata Metadata) error {
	if id == "" {
		return fmt.Errorf("put: id cannot be empty")
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", id, err)
	}

	doc := &storage.Document{
		Collection: c.name,
		ID:         id,
		Content:    text,
		Metadata:   metadata,
		Embedding:  embeddings.SerializeEmbedding(vec),
		UpdatedAt:  time.Now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}

	c.removeLocked(id)
	c.addLocked(id, vec)
	return nil
}

// Query returns the k documents nearest to text, closest first
func (c *Collection) Query(ctx context.Context, text string, k int, filter *Filter) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if filter.Empty() {
		if records, ok := c.searchGraph(ctx, vec, k); ok {
			return records, nil
		}
	}

	return c.scan(ctx, vec, k, filter)
}

// searchGraph answers an unfiltered query from HNSW. ok is false when the
// graph can't give a complete answer and the caller should scan instead.
func (c *Collection) searchGraph(ctx context.Context, vec []float32, k int) (records []Record, ok bool) {
	c.mu.RLock()
	if c.graph == nil || c.graph.Len() == 0 || len(vec) != c.dims {
		c.mu.RUnlock()
		return nil, false
	}
	want := min(k, c.graph.Len())

	var nodes []hnsw.Node[string]
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("HNSW panic recovered in Query", "error", r)
				nodes = nil
			}
		}()
		nodes = c.graph.Search(vec, k)
	}()
	c.mu.RUnlock()

	if len(nodes) < want {
		return nil, false
	}

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Key
	}

	docs, err := c.db.GetMany(ctx, c.name, ids)
	if err != nil || len(docs) != len(ids) {
		// Graph and table disagree; the scan is authoritative
		return nil, false
	}

	records = make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordWithDistance(doc, vec))
	}
	sortByDistance(records)
	return records, true
}

// scan computes cosine distance against every matching row
func (c *Collection) scan(ctx context.Context, vec []float32, k int, filter *Filter) ([]Record, error) {
	docs, err := c.db.List(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		if !filter.Match(Metadata(doc.Metadata)) {
			continue
		}
		if len(doc.Embedding) == 0 {
			continue
		}
		records = append(records, recordWithDistance(doc, vec))
	}

	sortByDistance(records)
	if len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// Get returns the documents with the given ids; missing ids are skipped
func (c *Collection) Get(ctx context.Context, ids ...string) ([]Record, error) {
	docs, err := c.db.GetMany(ctx, c.name, ids)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	records := make([]Record, len(docs))
	for i, doc := range docs {
		records[i] = toRecord(doc)
	}
	return records, nil
}

// Delete removes documents by id; unknown ids are ignored
func (c *Collection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Delete(ctx, c.name, ids); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	for _, id := range ids {
		c.removeLocked(id)
	}
	return nil
}

// Count returns the number of stored documents
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.db.Count(ctx, c.name)
}

// ListAll returns every document in the collection
func (c *Collection) ListAll(ctx context.Context) ([]Record, error) {
	docs, err := c.db.List(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	records := make([]Record, len(docs))
	for i, doc := range docs {
		records[i] = toRecord(doc)
	}
	return records, nil
}

// addLocked inserts a vector into the graph. Caller must hold c.mu.
func (c *Collection) addLocked(id string, vec []float32) {
	if c.graph == nil {
		return
	}
	if c.dims == 0 {
		c.dims = len(vec)
	}
	if len(vec) != c.dims {
		c.logger.Warn("Embedding dimension mismatch, graph disabled", "id", id, "want", c.dims, "got", len(vec))
		c.graph = nil
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("HNSW panic recovered in Add, graph disabled", "error", r, "id", id)
			c.graph = nil
		}
	}()
	c.graph.Add(hnsw.MakeNode(id, vec))
}

// removeLocked drops a vector from the graph. Caller must hold c.mu.
func (c *Collection) removeLocked(id string) {
	if c.graph == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("HNSW panic recovered in Delete, graph disabled", "error", r, "id", id)
			c.graph = nil
		}
	}()
	if _, exists := c.graph.Lookup(id); exists {
		c.graph.Delete(id)
	}
}

func (c *Collection) graphLen() int {
	if c.graph == nil {
		return 0
	}
	return c.graph.Len()
}

func toRecord(doc *storage.Document) Record {
	return Record{
		ID:       doc.ID,
		Document: doc.Content,
		Metadata: Metadata(doc.Metadata),
	}
}

func recordWithDistance(doc *storage.Document, query []float32) Record {
	r := toRecord(doc)
	r.Distance = embeddings.CosineDistance(query, embeddings.DeserializeEmbedding(doc.Embedding))
	r.HasDistance = true
	return r
}

// sortByDistance orders closest first, ties by id for stable output
func sortByDistance(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Distance != records[j].Distance {
			return records[i].Distance < records[j].Distance
		}
		return records[i].ID < records[j].ID
	})
}

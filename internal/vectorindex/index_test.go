package vectorindex

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, embeddings.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCollection(t *testing.T) *Collection {
	t.Helper()
	s := openTestStore(t, filepath.Join(t.TempDir(), "index.db"))
	c, err := s.Collection(context.Background(), "items")
	require.NoError(t, err)
	return c
}

func TestOpenRequiresEmbedder(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), nil)
	assert.Error(t, err)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	require.NoError(t, c.Put(ctx, "a", "first version", Metadata{"v": "1"}))
	require.NoError(t, c.Put(ctx, "a", "second version", Metadata{"v": "2"}))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "second version", recs[0].Document)
	assert.Equal(t, "2", recs[0].Metadata["v"])
	assert.False(t, recs[0].HasDistance)
}

func TestQueryRanksByDistance(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	require.NoError(t, c.Put(ctx, "rust", "rust compiler performance improvements", nil))
	require.NoError(t, c.Put(ctx, "ball", "baseball playoffs schedule", nil))
	require.NoError(t, c.Put(ctx, "go", "go compiler generics", nil))

	recs, err := c.Query(ctx, "rust compiler performance", 2, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "rust", recs[0].ID)
	assert.True(t, recs[0].HasDistance)
	assert.LessOrEqual(t, recs[0].Distance, recs[1].Distance)
}

func TestQueryWithFilter(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	require.NoError(t, c.Put(ctx, "a", "kubernetes operators", Metadata{"type": "article", "topics": "k8s,cloud"}))
	require.NoError(t, c.Put(ctx, "b", "kubernetes operators", Metadata{"type": "digest", "topics": "k8s"}))
	require.NoError(t, c.Put(ctx, "c", "kubernetes operators", Metadata{"type": "article", "topics": "ml"}))

	recs, err := c.Query(ctx, "kubernetes", 10, &Filter{Equals: map[string]string{"type": "article"}})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = c.Query(ctx, "kubernetes", 10, &Filter{
		Equals:   map[string]string{"type": "article"},
		Contains: map[string]string{"topics": "cloud"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestQueryEdgeCases(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	recs, err := c.Query(ctx, "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, c.Put(ctx, "a", "one document", nil))

	recs, err = c.Query(ctx, "one", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = c.Query(ctx, "one", 50, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	require.NoError(t, c.Put(ctx, "a", "alpha", nil))
	require.NoError(t, c.Put(ctx, "b", "beta", nil))
	require.NoError(t, c.Delete(ctx, "a", "missing"))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := c.Query(ctx, "alpha", 5, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ID)
}

func TestReloadFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(path, embeddings.NewHashEmbedder(64))
	require.NoError(t, err)
	c, err := s.Collection(ctx, "items")
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "a", "persisted across restarts", Metadata{"k": "v"}))
	require.NoError(t, s.Close())

	s = openTestStore(t, path)
	c, err = s.Collection(ctx, "items")
	require.NoError(t, err)

	recs, err := c.Query(ctx, "persisted restarts", 1, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "v", recs[0].Metadata["k"])
}

func TestGraphAgreesWithScan(t *testing.T) {
	ctx := context.Background()
	c := testCollection(t)

	for i := 0; i < 40; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("doc-%02d", i), fmt.Sprintf("topic %d words %d", i%7, i), nil))
	}

	vec, err := c.embedder.Embed(ctx, "topic 3 words")
	require.NoError(t, err)

	scanned, err := c.scan(ctx, vec, 40, nil)
	require.NoError(t, err)

	queried, err := c.Query(ctx, "topic 3 words", 40, nil)
	require.NoError(t, err)

	require.Len(t, queried, len(scanned))
	assert.InDelta(t, scanned[0].Distance, queried[0].Distance, 1e-6)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "index.db"))

	items, err := s.Collection(ctx, "items")
	require.NoError(t, err)
	digests, err := s.Collection(ctx, "digests")
	require.NoError(t, err)

	require.NoError(t, items.Put(ctx, "x", "shared id", nil))
	require.NoError(t, digests.Put(ctx, "x", "shared id", nil))
	require.NoError(t, items.Delete(ctx, "x"))

	n, err := digests.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	same, err := s.Collection(ctx, "digests")
	require.NoError(t, err)
	assert.Same(t, digests, same)
}

func TestFilterMatch(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.Empty())
	assert.True(t, nilFilter.Match(Metadata{"a": "b"}))

	f := &Filter{Equals: map[string]string{"source": "hn"}}
	assert.True(t, f.Match(Metadata{"source": "hn"}))
	assert.False(t, f.Match(Metadata{"source": "rss"}))
	assert.False(t, f.Match(nil))
}

package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	urls []string
}

func (f *fakeIngester) IngestURL(_ context.Context, url, source string, topics []string) archive.PutItemResult {
	f.urls = append(f.urls, url)
	if url == "https://broken.example" {
		return archive.PutItemResult{ContentID: "cnt_web_x", Error: "fetch failed"}
	}
	return archive.PutItemResult{Success: true, ContentID: "cnt_" + source + "_x", URL: url}
}

func newTestRegistry(t *testing.T, ingester URLIngester) *Registry {
	t.Helper()
	a := archive.New(archive.DefaultConfig(filepath.Join(t.TempDir(), "archive")),
		archive.WithEmbedder(embeddings.NewHashEmbedder(128)))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	r := NewRegistry()
	RegisterArchiveTools(r, a, ingester)
	return r
}

func exec(t *testing.T, r *Registry, name string, args any) Result {
	t.Helper()
	b, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := r.Execute(context.Background(), name, string(b))
	require.NoError(t, err)
	return res
}

func TestDefinitions(t *testing.T) {
	r := newTestRegistry(t, nil)

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}
	assert.Equal(t, []string{
		"archive_stats", "context_summary", "delete_item", "get_item", "latest_digest",
		"put_digest", "put_item", "run_retention_sweep", "search_digests", "search_items",
	}, names)

	_, ok := r.Get("ingest_url")
	assert.False(t, ok)
}

func TestUnknownTool(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "nope", "{}")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestSchemaValidation(t *testing.T) {
	r := newTestRegistry(t, nil)

	res := exec(t, r, "put_item", map[string]any{"url": "https://a.example"})
	assert.Contains(t, res.Error, "schema validation failed")
	assert.Contains(t, res.Error, "content")

	res = exec(t, r, "search_items", map[string]any{"query": "x", "limit": 0})
	assert.Contains(t, res.Error, "schema validation failed")

	res, err := r.Execute(context.Background(), "get_item", "{not json")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)
}

func TestItemRoundTrip(t *testing.T) {
	r := newTestRegistry(t, nil)

	res := exec(t, r, "put_item", map[string]any{
		"url":     "https://a.example/post",
		"content": "postgres vacuum tuning for large tables",
		"title":   "Vacuum",
		"source":  "hn",
		"topics":  []string{"databases"},
	})
	require.Empty(t, res.Error)

	var put archive.PutItemResult
	require.NoError(t, json.Unmarshal([]byte(res.Output), &put))
	assert.True(t, put.Success)

	res = exec(t, r, "get_item", map[string]any{"content_id": put.ContentID})
	require.Empty(t, res.Error)
	var item archive.ContentItem
	require.NoError(t, json.Unmarshal([]byte(res.Output), &item))
	assert.Equal(t, "Vacuum", item.Title)
	assert.Equal(t, []string{"databases"}, item.Topics)

	res = exec(t, r, "search_items", map[string]any{"query": "vacuum", "source_filter": "hn"})
	require.Empty(t, res.Error)
	var found struct {
		Count int                   `json:"count"`
		Items []archive.ContentItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &found))
	assert.Equal(t, 1, found.Count)

	res = exec(t, r, "delete_item", map[string]any{"content_id": put.ContentID})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, `"removed": true`)

	res = exec(t, r, "get_item", map[string]any{"content_id": put.ContentID})
	assert.Contains(t, res.Error, "content not found")
}

func TestDigestTools(t *testing.T) {
	r := newTestRegistry(t, nil)

	res := exec(t, r, "latest_digest", map[string]any{})
	assert.NotEmpty(t, res.Error)

	res = exec(t, r, "put_digest", map[string]any{
		"digest_id": "digest_test",
		"digest": map[string]any{
			"title":    "Evening",
			"metadata": map[string]any{"article_count": 999, "topics": []string{"tech"}},
			"sections": []any{
				map[string]any{"title": "Tech", "articles": []any{
					map[string]any{"title": "a", "content": "one", "format": map[string]any{"reading_time": 3}},
					map[string]any{"title": "b", "content": "two"},
				}},
			},
		},
	})
	require.Empty(t, res.Error)
	var put archive.PutDigestResult
	require.NoError(t, json.Unmarshal([]byte(res.Output), &put))
	assert.Equal(t, 2, put.ArticleCount)
	assert.Equal(t, 4, put.ReadingTimeMinutes)

	res = exec(t, r, "search_digests", map[string]any{"days_back": 7})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, `"digest_test"`)

	res = exec(t, r, "latest_digest", map[string]any{})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, `"Evening"`)

	res = exec(t, r, "context_summary", map[string]any{})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, `"total_digests": 1`)

	res = exec(t, r, "archive_stats", map[string]any{})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, `"max_age_days": 60`)

	res = exec(t, r, "run_retention_sweep", map[string]any{})
	require.Empty(t, res.Error)
}

func TestEmptyArgsAreAnObject(t *testing.T) {
	r := newTestRegistry(t, nil)
	res, err := r.Execute(context.Background(), "archive_stats", "")
	require.NoError(t, err)
	assert.Empty(t, res.Error)
}

func TestIngestURLTool(t *testing.T) {
	ing := &fakeIngester{}
	r := newTestRegistry(t, ing)

	res := exec(t, r, "ingest_url", map[string]any{"url": "ftp://nope"})
	assert.Contains(t, res.Error, "schema validation failed")
	assert.Empty(t, ing.urls)

	res = exec(t, r, "ingest_url", map[string]any{"url": "https://ok.example", "source": "web"})
	require.Empty(t, res.Error)
	assert.Contains(t, res.Output, "cnt_web_x")

	res = exec(t, r, "ingest_url", map[string]any{"url": "https://broken.example"})
	assert.Equal(t, "fetch failed", res.Error)
	assert.Contains(t, res.Output, `"success": false`)
}

func TestValidatorCachesSchemas(t *testing.T) {
	v := NewValidator()
	schema := object([]string{"a"}, map[string]any{"a": map[string]any{"type": "string"}})

	require.NoError(t, v.Validate(schema, `{"a":"x"}`))
	require.Error(t, v.Validate(schema, `{}`))

	n := 0
	v.cache.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 1, n)

	assert.Error(t, v.Validate(map[string]any{"type": 12}, `{}`))
}

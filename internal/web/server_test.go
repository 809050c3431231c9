package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/metrics"
	"github.com/renderinc/briefing/internal/tools"
)

func newTestServer(t *testing.T) (http.Handler, *archive.Archive) {
	t.Helper()

	m := metrics.New()
	a := archive.New(archive.DefaultConfig(t.TempDir()), archive.WithMetrics(m))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	r := tools.NewRegistry(tools.WithRegistryMetrics(m))
	tools.RegisterArchiveTools(r, a, nil)

	return NewServer(a, r, m, nil).Handler(), a
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["embedder_available"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthNotInitialized(t *testing.T) {
	a := archive.New(archive.DefaultConfig(t.TempDir()))
	h := NewServer(a, tools.NewRegistry(), nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestRequestIDIsPropagated(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestToolEndpoints(t *testing.T) {
	h, a := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []tools.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.NotEmpty(t, defs)

	rec = do(t, h, http.MethodPost, "/api/tools/put_item",
		`{"content_id":"item-1","url":"https://example.com/1","content":"kubernetes autoscaling guide","title":"K8s"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "item-1")

	item, err := a.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "K8s", item.Title)

	rec = do(t, h, http.MethodPost, "/api/tools/put_item", `{"url":"https://example.com/1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tools/put_item", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tools/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/tools/put_item", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetItem(t *testing.T) {
	h, a := newTestServer(t)
	res := a.PutItem(context.Background(), archive.ItemInput{
		ContentID: "item-2", URL: "https://example.com/2", Body: "rust borrow checker", Title: "Rust",
	})
	require.True(t, res.Success)

	rec := do(t, h, http.MethodGet, "/api/items/item-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var item archive.ContentItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "Rust", item.Title)

	rec = do(t, h, http.MethodGet, "/api/items/item-2?format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Rust\n\nrust borrow checker\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/items/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	h, a := newTestServer(t)
	ctx := context.Background()
	a.PutItem(ctx, archive.ItemInput{ContentID: "a", URL: "https://e.com/a", Body: "rust compiler release notes"})
	a.PutItem(ctx, archive.ItemInput{ContentID: "b", URL: "https://e.com/b", Body: "baseball playoff schedule"})

	rec := do(t, h, http.MethodGet, "/api/search?q=rust+compiler&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].ContentID)
	assert.Equal(t, archive.ModeSemantic, resp.Mode)

	rec = do(t, h, http.MethodGet, "/api/search?q=rust&mode=hybrid&weight=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDigests(t *testing.T) {
	h, a := newTestServer(t)
	res := a.PutDigest(context.Background(), "", &archive.Digest{Title: "Morning Brief"})
	require.True(t, res.Success, res.Error)

	rec := do(t, h, http.MethodGet, "/api/digests?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Digests []archive.DigestSnapshot `json:"digests"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Morning Brief", body.Digests[0].Title)

	rec = do(t, h, http.MethodGet, "/api/digests?days=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/api/tools/archive_stats", `{}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "briefing_archive_operations_total")
}

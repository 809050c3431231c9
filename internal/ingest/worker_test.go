package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/hn"
	"github.com/renderinc/briefing/internal/scraper"
)

const pageHTML = `<html><head><title>%s</title></head><body><article>
<h1>%s</h1>
<p>This is a long enough paragraph about %s so that readability keeps it as the main content of the page.</p>
<p>A second paragraph adds more text so the extraction has something substantial to score and return.</p>
</article></body></html>`

type fakeArchive struct {
	mu     sync.Mutex
	inputs []archive.ItemInput
	fail   map[string]bool
}

func (f *fakeArchive) PutItem(_ context.Context, in archive.ItemInput) archive.PutItemResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[in.Title] {
		return archive.PutItemResult{Title: in.Title, Error: "boom"}
	}
	f.inputs = append(f.inputs, in)
	return archive.PutItemResult{Success: true, ContentID: fmt.Sprintf("cnt_%d", len(f.inputs)), URL: in.URL, Title: in.Title}
}

func (f *fakeArchive) byTitle(title string) (archive.ItemInput, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.inputs {
		if in.Title == title {
			return in, true
		}
	}
	return archive.ItemInput{}, false
}

// newTestServers starts a fake article host and a fake HN API pointing at it
func newTestServers(t *testing.T) (hnURL, siteURL string) {
	t.Helper()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rust":
			fmt.Fprintf(w, pageHTML, "Rust News", "Rust News", "the rust compiler")
		case "/go":
			fmt.Fprintf(w, pageHTML, "Go News", "Go News", "goroutines and channels")
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	t.Cleanup(site.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			w.Write([]byte(`[1, 2, 3, 4, 5, 6]`))
		case "/item/1.json":
			fmt.Fprintf(w, `{"id":1,"type":"story","title":"Rust story","url":"%s/rust","score":10,"by":"a"}`, site.URL)
		case "/item/2.json":
			fmt.Fprintf(w, `{"id":2,"type":"story","title":"Broken link","url":"%s/missing","score":5}`, site.URL)
		case "/item/3.json":
			w.Write([]byte(`{"id":3,"type":"story","title":"Ask HN: Backups?","text":"<p>How do you <i>back up</i> a homelab?</p>"}`))
		case "/item/4.json":
			w.Write([]byte(`{"id":4,"type":"story","title":"Flagged","dead":true}`))
		case "/item/5.json":
			fmt.Fprintf(w, `{"id":5,"type":"story","title":"Go story","url":"%s/go"}`, site.URL)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(api.Close)

	return api.URL, site.URL
}

func TestIngestTopStories(t *testing.T) {
	hnURL, _ := newTestServers(t)
	a := &fakeArchive{fail: map[string]bool{"Go story": true}}
	w := NewWorker(a, hn.NewClient(hn.WithBaseURL(hnURL), hn.WithRequestInterval(0)), scraper.New(), WithConcurrency(2))

	stats, err := w.IngestTopStories(context.Background(), 10, []string{"tech"})
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.Stored)
	assert.Equal(t, 1, stats.Skipped, "dead story")
	assert.Equal(t, 2, stats.Failed, "item 6 fetch error and the rejected Go story")
	assert.Equal(t, 1, stats.ScrapeFallbacks)
	assert.Len(t, stats.Items, 3)

	rust, ok := a.byTitle("Rust story")
	require.True(t, ok)
	assert.Equal(t, SourceHackerNews, rust.Source)
	assert.Equal(t, []string{"tech"}, rust.Topics)
	assert.Contains(t, rust.Body, "rust compiler")
	assert.Equal(t, "1", rust.Metadata["hn_id"])
	assert.Equal(t, "10", rust.Metadata["hn_score"])

	broken, ok := a.byTitle("Broken link")
	require.True(t, ok)
	assert.Contains(t, broken.Body, "Broken link")
	assert.Contains(t, broken.Body, "/missing")

	ask, ok := a.byTitle("Ask HN: Backups?")
	require.True(t, ok)
	assert.Equal(t, "https://news.ycombinator.com/item?id=3", ask.URL)
	assert.Contains(t, ask.Body, "homelab")
	assert.NotContains(t, ask.Body, "<p>")
}

func TestIngestTopStoriesListFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer api.Close()

	w := NewWorker(&fakeArchive{}, hn.NewClient(hn.WithBaseURL(api.URL), hn.WithRequestInterval(0)), scraper.New())
	_, err := w.IngestTopStories(context.Background(), 5, nil)
	assert.ErrorContains(t, err, "fetch top stories")
}

func TestIngestTopStoriesWithoutSource(t *testing.T) {
	w := NewWorker(&fakeArchive{}, nil, scraper.New())
	_, err := w.IngestTopStories(context.Background(), 5, nil)
	assert.Error(t, err)
}

func TestIngestURLs(t *testing.T) {
	_, siteURL := newTestServers(t)
	a := &fakeArchive{}
	w := NewWorker(a, nil, scraper.New())

	stats, err := w.IngestURLs(context.Background(),
		[]string{siteURL + "/rust", siteURL + "/go", siteURL + "/missing", "not-a-url"}, "blog", []string{"dev"})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 2, stats.Failed)
	assert.Zero(t, stats.ScrapeFallbacks)

	in, ok := a.byTitle("Go News")
	require.True(t, ok)
	assert.Equal(t, "blog", in.Source)
	assert.Contains(t, in.Body, "goroutines")
}

func TestIngestURLReportsScrapeFailure(t *testing.T) {
	_, siteURL := newTestServers(t)
	w := NewWorker(&fakeArchive{}, nil, scraper.New())

	res := w.IngestURL(context.Background(), siteURL+"/missing", "", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "scrape")
	assert.Equal(t, siteURL+"/missing", res.URL)
}

func TestIngestIntoRealArchive(t *testing.T) {
	_, siteURL := newTestServers(t)

	a := archive.New(archive.DefaultConfig(t.TempDir()))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	w := NewWorker(a, nil, scraper.New())
	res := w.IngestURL(context.Background(), siteURL+"/rust", "", []string{"rust"})
	require.True(t, res.Success, res.Error)

	item, err := a.GetItem(context.Background(), res.ContentID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "web", item.Source)
	assert.Equal(t, []string{"rust"}, item.Topics)
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Rust 2.0 Released</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Rust 2.0 Released</h1>
<p>The Rust team announced a major release today with a long list of improvements to the borrow checker and compile times.</p>
<p>Incremental builds are now roughly twice as fast on large workspaces, according to benchmarks published alongside the announcement.</p>
<p>The release also stabilises several long-awaited language features that the community has been asking for over many years.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s := New(WithUserAgent("test-agent"))
	article, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, article.URL)
	assert.Contains(t, article.Title, "Rust 2.0")
	assert.Contains(t, article.Content, "borrow checker")
	assert.NotContains(t, article.Content, "<p>")
}

func TestScrapeTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	article, err := New(WithMaxChars(40)).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(article.Content)), 40)
}

func TestScrapeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := New(WithTimeout(time.Second))
	ctx := context.Background()

	_, err := s.Scrape(ctx, srv.URL)
	assert.ErrorContains(t, err, "unexpected status: 404")

	for _, bad := range []string{"", "not a url", "ftp://example.com/file", "/relative/path"} {
		_, err := s.Scrape(ctx, bad)
		assert.ErrorContains(t, err, "invalid URL", bad)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "hello", truncate("hello", 0))
	assert.Equal(t, "hi", truncate("hi", 10))
	assert.Equal(t, strings.Repeat("é", 3), truncate(strings.Repeat("é", 5), 3))
}

func TestHTMLToMarkdown(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.HTMLToMarkdown("  "))
	out := s.HTMLToMarkdown("<p>What do you use for <b>backups</b>?</p>")
	assert.Contains(t, out, "**backups**")
	assert.NotContains(t, out, "<p>")
}

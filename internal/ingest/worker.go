// Package ingest pulls stories from Hacker News and arbitrary URLs into the archive.
package ingest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/hn"
	"github.com/renderinc/briefing/internal/metrics"
	"github.com/renderinc/briefing/internal/scraper"
)

// SourceHackerNews is the archive source of stories from the HN front page
const SourceHackerNews = "hackernews"

const defaultConcurrency = 4

// Archive is the part of the archive the worker writes to
type Archive interface {
	PutItem(ctx context.Context, in archive.ItemInput) archive.PutItemResult
}

// StorySource lists and fetches HN items
type StorySource interface {
	TopStories(ctx context.Context, limit int) ([]int64, error)
	Item(ctx context.Context, id int64) (*hn.Item, error)
}

// Scraper extracts article content from a URL
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scraper.Article, error)
	HTMLToMarkdown(html string) string
}

// Worker ingests batches with bounded concurrency
type Worker struct {
	archive     Archive
	stories     StorySource
	scraper     Scraper
	logger      *log.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures a Worker
type Option func(*Worker)

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l.WithPrefix("ingest")
		}
	}
}

// WithMetrics counts stored and failed items
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithConcurrency sets how many items are fetched at once
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWorker creates an ingest worker. stories may be nil when only URLs are ingested.
func NewWorker(a Archive, stories StorySource, s Scraper, opts ...Option) *Worker {
	w := &Worker{
		archive:     a,
		stories:     stories,
		scraper:     s,
		logger:      log.New(io.Discard),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats holds batch statistics
type Stats struct {
	Total           int           `json:"total"`
	Stored          int           `json:"stored"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	ScrapeFallbacks int           `json:"scrape_fallbacks"`
	Duration        time.Duration `json:"duration"`
	Items           []string      `json:"content_ids,omitempty"`
}

// tally accumulates Stats from concurrent goroutines
type tally struct {
	mu    sync.Mutex
	stats Stats
}

func (t *tally) add(fn func(s *Stats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.stats)
}

// IngestTopStories archives up to limit front-page stories tagged with topics.
// Per-story failures are counted and never abort the batch.
func (w *Worker) IngestTopStories(ctx context.Context, limit int, topics []string) (*Stats, error) {
	if w.stories == nil {
		return nil, fmt.Errorf("ingest top stories: no story source configured")
	}
	start := time.Now()

	// 1. Fetch the front page
	ids, err := w.stories.TopStories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch top stories: %w", err)
	}
	w.logger.Info("Ingesting top stories", "count", len(ids))

	// 2. Fetch, scrape and store each story
	t := &tally{stats: Stats{Total: len(ids)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			w.ingestStory(gctx, id, topics, t)
			return nil
		})
	}
	_ = g.Wait()

	stats := t.stats
	stats.Duration = time.Since(start)
	w.record(&stats)
	w.logger.Info("Ingest complete",
		"stored", stats.Stored, "skipped", stats.Skipped, "failed", stats.Failed,
		"fallbacks", stats.ScrapeFallbacks, "duration", stats.Duration)

	if err := ctx.Err(); err != nil {
		return &stats, fmt.Errorf("ingest top stories: %w", err)
	}
	return &stats, nil
}

// ingestStory archives one HN story. Failures are logged and counted.
func (w *Worker) ingestStory(ctx context.Context, id int64, topics []string, t *tally) {
	if ctx.Err() != nil {
		t.add(func(s *Stats) { s.Failed++ })
		return
	}

	item, err := w.stories.Item(ctx, id)
	if err != nil {
		w.logger.Warn("Failed to fetch story", "id", id, "error", err)
		t.add(func(s *Stats) { s.Failed++ })
		return
	}
	if item.Dead || item.Deleted || item.Title == "" {
		t.add(func(s *Stats) { s.Skipped++ })
		return
	}

	body, fallback := w.storyBody(ctx, item)

	res := w.archive.PutItem(ctx, archive.ItemInput{
		URL:    item.Link(),
		Body:   body,
		Title:  item.Title,
		Source: SourceHackerNews,
		Topics: topics,
		Metadata: map[string]string{
			"hn_id":          strconv.FormatInt(item.ID, 10),
			"hn_score":       strconv.Itoa(item.Score),
			"hn_by":          item.By,
			"hn_comments":    strconv.Itoa(item.Descendants),
			"discussion_url": item.DiscussionURL(),
		},
	})
	if !res.Success {
		w.logger.Warn("Failed to archive story", "id", id, "error", res.Error)
		t.add(func(s *Stats) { s.Failed++ })
		return
	}

	t.add(func(s *Stats) {
		s.Stored++
		s.Items = append(s.Items, res.ContentID)
		if fallback {
			s.ScrapeFallbacks++
		}
	})
	w.logger.Debug("Archived story", "id", id, "content_id", res.ContentID, "title", item.Title)
}

// storyBody picks the archived body: the scraped article, the post text for
// Ask HN items, or title and link when scraping fails.
func (w *Worker) storyBody(ctx context.Context, item *hn.Item) (body string, fallback bool) {
	if item.URL == "" {
		if text := w.scraper.HTMLToMarkdown(item.Text); text != "" {
			return item.Title + "\n\n" + text, false
		}
		return fallbackBody(item.Title, item.Link()), true
	}

	article, err := w.scraper.Scrape(ctx, item.URL)
	if err != nil {
		w.logger.Debug("Scrape failed, archiving title only", "url", item.URL, "error", err)
		return fallbackBody(item.Title, item.URL), true
	}
	return article.Content, false
}

func fallbackBody(title, url string) string {
	return title + "\n\n" + url
}

// IngestURL scrapes one page and archives it
func (w *Worker) IngestURL(ctx context.Context, url, source string, topics []string) archive.PutItemResult {
	article, err := w.scraper.Scrape(ctx, url)
	if err != nil {
		w.logger.Warn("Failed to scrape URL", "url", url, "error", err)
		return archive.PutItemResult{URL: url, Error: fmt.Sprintf("scrape: %v", err)}
	}

	md := map[string]string{}
	if article.Byline != "" {
		md["byline"] = article.Byline
	}

	return w.archive.PutItem(ctx, archive.ItemInput{
		URL:      url,
		Body:     article.Content,
		Title:    article.Title,
		Source:   source,
		Topics:   topics,
		Metadata: md,
	})
}

// IngestURLs archives each URL with bounded concurrency
func (w *Worker) IngestURLs(ctx context.Context, urls []string, source string, topics []string) (*Stats, error) {
	start := time.Now()
	t := &tally{stats: Stats{Total: len(urls)}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, u := range urls {
		g.Go(func() error {
			if gctx.Err() != nil {
				t.add(func(s *Stats) { s.Failed++ })
				return nil
			}
			res := w.IngestURL(gctx, u, source, topics)
			t.add(func(s *Stats) {
				if res.Success {
					s.Stored++
					s.Items = append(s.Items, res.ContentID)
				} else {
					s.Failed++
				}
			})
			return nil
		})
	}
	_ = g.Wait()

	stats := t.stats
	stats.Duration = time.Since(start)
	w.record(&stats)

	if err := ctx.Err(); err != nil {
		return &stats, fmt.Errorf("ingest urls: %w", err)
	}
	return &stats, nil
}

func (w *Worker) record(s *Stats) {
	w.metrics.AddIngested("stored", s.Stored)
	w.metrics.AddIngested("failed", s.Failed)
	w.metrics.AddIngested("fallback", s.ScrapeFallbacks)
}

package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/renderinc/briefing/internal/embeddings"
	"github.com/renderinc/briefing/internal/metrics"
)

// Collection names inside the archive database
const (
	ItemCollection   = "item_archive"
	DigestCollection = "digest_archive"
)

// Config holds archive limits and layout. Zero fields take defaults.
type Config struct {
	// Dir holds archive.db and the keyword index; created if absent
	Dir string

	MaxAgeDays int
	MaxItems   int

	EmbedMaxChars      int // rune ceiling for any embedded text
	PreviewChars       int // GetItem preview
	SearchPreviewChars int // SearchItems preview
	DigestArticleChars int // per-article excerpt in digest searchable text
	DigestCandidates   int // similarity over-fetch for SearchDigests

	Warmup       bool // embed and delete a probe document per collection on Init
	KeywordIndex bool // maintain a Bleve index for keyword and hybrid search
}

// DefaultConfig returns the standard limits for dir
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		MaxAgeDays:         60,
		MaxItems:           500,
		EmbedMaxChars:      8000,
		PreviewChars:       300,
		SearchPreviewChars: 200,
		DigestArticleChars: 500,
		DigestCandidates:   50,
		KeywordIndex:       true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Dir)
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = d.MaxAgeDays
	}
	if c.MaxItems <= 0 {
		c.MaxItems = d.MaxItems
	}
	if c.EmbedMaxChars <= 0 {
		c.EmbedMaxChars = d.EmbedMaxChars
	}
	if c.PreviewChars <= 0 {
		c.PreviewChars = d.PreviewChars
	}
	if c.SearchPreviewChars <= 0 {
		c.SearchPreviewChars = d.SearchPreviewChars
	}
	if c.DigestArticleChars <= 0 {
		c.DigestArticleChars = d.DigestArticleChars
	}
	if c.DigestCandidates <= 0 {
		c.DigestCandidates = d.DigestCandidates
	}
	return c
}

// Validate checks the settings that have no sensible default
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("archive dir is required")
	}
	return nil
}

// MaxAge returns the retention window
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// Option configures an Archive
type Option func(*Archive)

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.logger = l.WithPrefix("archive")
		}
	}
}

// WithMetrics records operation counts and collection sizes
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Archive) {
		a.metrics = m
	}
}

// WithClock overrides time.Now, used by retention tests
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		if now != nil {
			a.now = now
		}
	}
}

// WithEmbedder sets the embedding provider (default: local hash embedder)
func WithEmbedder(e embeddings.Embedder) Option {
	return func(a *Archive) {
		if e != nil {
			a.embedder = e
		}
	}
}

func defaultLogger() *log.Logger {
	return log.New(io.Discard)
}

// Package scraper fetches web pages and extracts their readable content as Markdown.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-shiori/go-readability"
)

const (
	defaultMaxChars  = 20000
	defaultUserAgent = "Mozilla/5.0 (compatible; briefing/1.0)"

	// maxBodyBytes caps how much of a response is read before parsing
	maxBodyBytes = 5 << 20
)

// Article is the readable part of a page
type Article struct {
	URL     string
	Title   string
	Byline  string
	Content string // Markdown, or plain text when conversion fails
}

// Scraper extracts readable content from web pages
type Scraper struct {
	httpClient *http.Client
	converter  *md.Converter
	maxChars   int
	userAgent  string
}

// Option configures a Scraper
type Option func(*Scraper)

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithMaxChars caps the returned content length in characters; zero means unlimited
func WithMaxChars(n int) Option {
	return func(s *Scraper) {
		s.maxChars = n
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// New creates a scraper
func New(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		converter:  md.NewConverter("", true, nil),
		maxChars:   defaultMaxChars,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches rawURL and returns its main article
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	content, err := s.converter.ConvertString(article.Content)
	if err != nil || strings.TrimSpace(content) == "" {
		content = article.TextContent
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("no readable content at %s", rawURL)
	}

	return &Article{
		URL:     rawURL,
		Title:   strings.TrimSpace(article.Title),
		Byline:  strings.TrimSpace(article.Byline),
		Content: truncate(content, s.maxChars),
	}, nil
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// HTMLToMarkdown converts an HTML fragment such as an Ask HN body.
// Conversion failures return the input unchanged.
func (s *Scraper) HTMLToMarkdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	out, err := s.converter.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(out)
}

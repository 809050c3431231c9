package archive

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/briefing/internal/vectorindex"
)

// Digest metadata keys
const (
	keyDigestID = "digest_id"
	keyEdition  = "edition_type"
	keyTone     = "tone"
	keySubtitle = "subtitle"
	keyArticles = "article_count"
)

const (
	defaultEdition  = "standard"
	defaultDaysBack = 7
	recentDays      = 30
)

// DigestID returns the default id for a digest stored at t
func DigestID(t time.Time) string {
	return "digest_" + t.UTC().Format("20060102_150405")
}

// digestTotals walks every article. Caller-supplied totals are never used.
func digestTotals(d *Digest) (articles, minutes int) {
	for _, section := range d.Sections {
		for _, article := range section.Articles {
			articles++
			if article.Format.ReadingTime > 0 {
				minutes += article.Format.ReadingTime
			} else {
				minutes += readingTime(wordCount(article.Content))
			}
		}
	}
	return articles, minutes
}

// searchableText is one "Section: <title>" line per section followed by
// "<title>: <excerpt>" per article, cut to maxChars.
func searchableText(d *Digest, articleChars, maxChars int) string {
	var lines []string
	for _, section := range d.Sections {
		lines = append(lines, "Section: "+section.Title)
		for _, article := range section.Articles {
			lines = append(lines, article.Title+": "+truncateRunes(article.Content, articleChars))
		}
	}
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		text = "Digest: " + d.Title
	}
	return truncateRunes(text, maxChars)
}

// digestTopics is the order-preserving union of metadata and article topics
func digestTopics(d *Digest) []string {
	all := append([]string{}, d.Metadata.Topics...)
	for _, section := range d.Sections {
		for _, article := range section.Articles {
			all = append(all, article.Topics...)
		}
	}
	return cleanTopics(all)
}

// PutDigest stores a snapshot of d under id (derived from the clock when
// empty). Article count and reading time are recomputed from the sections.
func (a *Archive) PutDigest(ctx context.Context, id string, d *Digest) (res PutDigestResult) {
	start := time.Now()
	now := a.now().UTC()
	if id == "" {
		id = DigestID(now)
	}
	res = PutDigestResult{DigestID: id}

	var err error
	defer func() {
		a.observe("put_digest", start, err)
		if err != nil {
			res.Success = false
			res.Error = err.Error()
			a.logger.Error("Failed to store digest", "digest_id", id, "error", err)
		}
	}()

	_, digests, _, err := a.handles()
	if err != nil {
		return res
	}
	if d == nil {
		err = fmt.Errorf("digest cannot be empty")
		return res
	}

	articles, minutes := digestTotals(d)
	if d.Metadata.ArticleCount != 0 && d.Metadata.ArticleCount != articles {
		a.logger.Debug("Ignoring caller article count", "digest_id", id, "given", d.Metadata.ArticleCount, "actual", articles)
	}

	timestamp := d.Metadata.CreatedAt
	if timestamp == "" {
		timestamp = formatTimestamp(now)
	}
	edition := d.EditionType
	if edition == "" {
		edition = defaultEdition
	}

	md := vectorindex.Metadata{
		keyDigestID:    id,
		keyTitle:       d.Title,
		keySubtitle:    d.Subtitle,
		keyEdition:     edition,
		keyTimestamp:   timestamp,
		keyArticles:    strconv.Itoa(articles),
		keyTopics:      joinTopics(digestTopics(d)),
		keyTone:        d.Metadata.Tone,
		keyReadingTime: strconv.Itoa(minutes),
		"type":         "digest",
	}

	text := searchableText(d, a.cfg.DigestArticleChars, a.cfg.EmbedMaxChars)
	if err = digests.Put(ctx, id, text, md); err != nil {
		err = fmt.Errorf("put digest: %w", err)
		return res
	}

	a.recordSize(ctx, DigestCollection, digests)
	a.logger.Info("Stored digest", "digest_id", id, "articles", articles, "minutes", minutes)

	res.Success = true
	res.Timestamp = timestamp
	res.ArticleCount = articles
	res.ReadingTimeMinutes = minutes
	return res
}

// SearchDigests lists digests created in the last daysBack days, newest
// first. A non-empty query selects the candidates by similarity but never
// changes the order. Digests with malformed timestamps are left out.
func (a *Archive) SearchDigests(ctx context.Context, daysBack int, query string) ([]DigestSnapshot, error) {
	start := time.Now()
	_, digests, _, err := a.handles()
	if err != nil {
		return nil, err
	}

	out, err := a.searchDigests(ctx, digests, daysBack, query)
	a.observe("search_digests", start, err)
	if err != nil {
		a.logger.Error("Digest search failed", "query", query, "error", err)
		return []DigestSnapshot{}, nil
	}
	return out, nil
}

func (a *Archive) searchDigests(ctx context.Context, digests vectorindex.Index, daysBack int, query string) ([]DigestSnapshot, error) {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	cutoff := a.now().UTC().Add(-time.Duration(daysBack) * 24 * time.Hour)

	var (
		records []vectorindex.Record
		err     error
	)
	if strings.TrimSpace(query) != "" {
		records, err = digests.Query(ctx, query, a.cfg.DigestCandidates, nil)
	} else {
		records, err = digests.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]DigestSnapshot, 0, len(records))
	for _, rec := range records {
		snap, ok := toSnapshot(rec)
		if !ok || snap.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, snap)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DigestID > out[j].DigestID
	})
	return out, nil
}

// LatestDigest returns the newest digest of the last 30 days, or nil
func (a *Archive) LatestDigest(ctx context.Context) (*DigestSnapshot, error) {
	digests, err := a.SearchDigests(ctx, recentDays, "")
	if err != nil {
		return nil, err
	}
	if len(digests) == 0 {
		return nil, nil
	}
	return &digests[0], nil
}

// toSnapshot decodes digest metadata; ok is false for malformed timestamps
func toSnapshot(rec vectorindex.Record) (DigestSnapshot, bool) {
	md := rec.Metadata
	created, ok := parseTimestamp(md[keyTimestamp])
	if !ok {
		return DigestSnapshot{}, false
	}

	snap := DigestSnapshot{
		DigestID:    rec.ID,
		Title:       md[keyTitle],
		Subtitle:    md[keySubtitle],
		EditionType: md[keyEdition],
		Topics:      splitTopics(md[keyTopics]),
		Tone:        md[keyTone],
		CreatedAt:   created,
		Timestamp:   md[keyTimestamp],
	}
	snap.ArticleCount, _ = strconv.Atoi(md[keyArticles])
	snap.TotalReadingTimeMinutes, _ = strconv.Atoi(md[keyReadingTime])
	return snap, true
}

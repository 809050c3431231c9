package archive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/renderinc/briefing/internal/search"
	"github.com/renderinc/briefing/internal/vectorindex"
)

// Item metadata keys. Caller metadata may not override these.
const (
	keyContentID   = "content_id"
	keyURL         = "url"
	keyTitle       = "title"
	keySource      = "source"
	keyTopics      = "topics"
	keySummary     = "summary"
	keyTimestamp   = "timestamp"
	keyWordCount   = "word_count"
	keyReadingTime = "reading_time"
)

var reservedItemKeys = map[string]struct{}{
	keyContentID: {}, keyURL: {}, keyTitle: {}, keySource: {}, keyTopics: {},
	keySummary: {}, keyTimestamp: {}, keyWordCount: {}, keyReadingTime: {},
}

const (
	defaultSource      = "web"
	defaultSearchLimit = 5
)

// ItemID returns the content id PutItem would use for in at time now
func ItemID(in ItemInput, now time.Time) string {
	if in.ContentID != "" {
		return in.ContentID
	}
	source := in.Source
	if source == "" {
		source = defaultSource
	}
	key := in.URL
	if key == "" {
		key = in.Body
	}
	return DeriveContentID(source, now, key)
}

// PutItem archives one item, overwriting any item with the same id.
// Failures come back in the result; PutItem never returns an error.
func (a *Archive) PutItem(ctx context.Context, in ItemInput) (res PutItemResult) {
	start := time.Now()
	now := a.now().UTC()

	if in.Source == "" {
		in.Source = defaultSource
	}
	res = PutItemResult{
		ContentID: ItemID(in, now),
		URL:       in.URL,
		Title:     in.Title,
	}

	var err error
	defer func() {
		a.observe("put_item", start, err)
		if err != nil {
			res.Success = false
			res.Error = err.Error()
			a.logger.Error("Failed to store item", "content_id", res.ContentID, "title", in.Title, "error", err)
		}
	}()

	items, _, keywords, err := a.handles()
	if err != nil {
		return res
	}
	if strings.TrimSpace(in.Body) == "" {
		err = fmt.Errorf("content cannot be empty")
		return res
	}

	timestamp := formatTimestamp(now)
	words := wordCount(in.Body)
	topics := cleanTopics(in.Topics)

	md := vectorindex.Metadata{}
	for k, v := range in.Metadata {
		if _, reserved := reservedItemKeys[k]; !reserved {
			md[k] = v
		}
	}
	md[keyContentID] = res.ContentID
	md[keyURL] = in.URL
	md[keyTitle] = in.Title
	md[keySource] = in.Source
	md[keyTopics] = joinTopics(topics)
	md[keySummary] = in.Summary
	md[keyTimestamp] = timestamp
	md[keyWordCount] = strconv.Itoa(words)
	md[keyReadingTime] = strconv.Itoa(readingTime(words))

	text := truncateRunes(in.Body, a.cfg.EmbedMaxChars)
	if err = items.Put(ctx, res.ContentID, text, md); err != nil {
		err = fmt.Errorf("put item: %w", err)
		return res
	}

	if keywords != nil {
		if kerr := keywords.IndexItem(keywordDocument(res.ContentID, text, md)); kerr != nil {
			a.logger.Warn("Keyword index update failed", "content_id", res.ContentID, "error", kerr)
		}
	}

	a.recordSize(ctx, ItemCollection, items)
	a.logger.Debug("Stored item", "content_id", res.ContentID, "words", words)

	res.Success = true
	res.Timestamp = timestamp
	return res
}

// GetItem returns the item with id, or nil when it does not exist
func (a *Archive) GetItem(ctx context.Context, id string) (*ContentItem, error) {
	start := time.Now()
	items, _, _, err := a.handles()
	if err != nil {
		return nil, err
	}

	records, err := items.Get(ctx, id)
	a.observe("get_item", start, err)
	if err != nil {
		a.logger.Error("Failed to get item", "content_id", id, "error", err)
		return nil, nil
	}
	if len(records) == 0 {
		return nil, nil
	}

	item := a.toItem(records[0], a.cfg.PreviewChars)
	return &item, nil
}

// SearchItems returns items most similar to q.Query, best first.
// Index failures are logged and produce an empty list.
func (a *Archive) SearchItems(ctx context.Context, q ItemQuery) ([]ContentItem, error) {
	start := time.Now()
	items, _, keywords, err := a.handles()
	if err != nil {
		return nil, err
	}

	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	mode := q.Mode
	if mode == "" {
		mode = ModeSemantic
	}
	if mode != ModeSemantic && keywords == nil {
		a.logger.Warn("Keyword index disabled, using semantic search", "mode", mode)
		mode = ModeSemantic
	}

	var filter *vectorindex.Filter
	if q.Source != "" || q.Topic != "" {
		filter = &vectorindex.Filter{Equals: map[string]string{}, Contains: map[string]string{}}
		if q.Source != "" {
			filter.Equals[keySource] = q.Source
		}
		if q.Topic != "" {
			filter.Contains[keyTopics] = q.Topic
		}
	}

	var results []ContentItem
	switch mode {
	case ModeSemantic:
		results, err = a.semanticItems(ctx, items, q, filter)
	case ModeKeyword, ModeHybrid:
		results, err = a.rankedItems(ctx, items, keywords, q, mode, filter)
	default:
		err = fmt.Errorf("unknown search mode %q", mode)
	}

	a.observe("search_items", start, err)
	if err != nil {
		a.logger.Error("Item search failed", "query", q.Query, "error", err)
		return []ContentItem{}, nil
	}
	return results, nil
}

func (a *Archive) semanticItems(ctx context.Context, items vectorindex.Index, q ItemQuery, filter *vectorindex.Filter) ([]ContentItem, error) {
	records, err := items.Query(ctx, q.Query, q.Limit, filter)
	if err != nil {
		return nil, err
	}

	out := make([]ContentItem, 0, len(records))
	for _, rec := range records {
		item := a.toItem(rec, a.cfg.SearchPreviewChars)
		item.Body = ""
		item.Similarity = clampSimilarity(rec.Distance, rec.HasDistance)
		out = append(out, item)
	}
	return out, nil
}

// rankedItems serves keyword and hybrid modes. Similarity carries the
// normalised combined score.
func (a *Archive) rankedItems(ctx context.Context, items vectorindex.Index, keywords *search.Index, q ItemQuery, mode string, filter *vectorindex.Filter) ([]ContentItem, error) {
	candidates := q.Limit * 3
	if !filter.Empty() {
		candidates = a.cfg.DigestCandidates + q.Limit
	}

	kwHits, err := keywords.Search(q.Query, candidates)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	weight := 1.0
	var semHits []*search.Result
	if mode == ModeHybrid {
		weight = search.DefaultKeywordWeight
		if q.KeywordWeight != nil {
			weight = *q.KeywordWeight
		}
		records, err := items.Query(ctx, q.Query, candidates, filter)
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		for _, rec := range records {
			semHits = append(semHits, &search.Result{ID: rec.ID, Score: clampSimilarity(rec.Distance, rec.HasDistance)})
		}
	}

	merged, err := search.Merge(kwHits, semHits, -1, weight)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(merged))
	scores := make(map[string]float64, len(merged))
	for i, r := range merged {
		ids[i] = r.ID
		scores[r.ID] = r.Score
	}

	records, err := items.Get(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	out := make([]ContentItem, 0, q.Limit)
	for _, rec := range records {
		if !filter.Match(rec.Metadata) {
			continue
		}
		item := a.toItem(rec, a.cfg.SearchPreviewChars)
		item.Body = ""
		item.Similarity = scores[rec.ID]
		out = append(out, item)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// DeleteItem removes an item from both indexes. removed is false when the
// id was not archived.
func (a *Archive) DeleteItem(ctx context.Context, id string) (removed bool, err error) {
	start := time.Now()
	defer func() { a.observe("delete_item", start, err) }()

	items, _, keywords, err := a.handles()
	if err != nil {
		return false, err
	}

	existing, err := items.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("get item %s: %w", id, err)
	}
	if len(existing) == 0 {
		return false, nil
	}

	if err := items.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete item %s: %w", id, err)
	}
	if keywords != nil {
		if kerr := keywords.Delete(id); kerr != nil {
			a.logger.Warn("Keyword index delete failed", "content_id", id, "error", kerr)
		}
	}

	a.recordSize(ctx, ItemCollection, items)
	a.logger.Info("Deleted item", "content_id", id)
	return true, nil
}

func (a *Archive) toItem(rec vectorindex.Record, previewChars int) ContentItem {
	md := rec.Metadata
	item := ContentItem{
		ContentID: rec.ID,
		URL:       md[keyURL],
		Title:     md[keyTitle],
		Source:    md[keySource],
		Topics:    splitTopics(md[keyTopics]),
		Summary:   md[keySummary],
		Body:      rec.Document,
		Preview:   preview(rec.Document, previewChars),
		Timestamp: md[keyTimestamp],
	}
	if item.Title == "" {
		item.Title = "Unknown"
	}
	if item.Source == "" {
		item.Source = "unknown"
	}
	item.WordCount, _ = strconv.Atoi(md[keyWordCount])
	item.ReadingTimeMinutes, _ = strconv.Atoi(md[keyReadingTime])
	item.CreatedAt, _ = parseTimestamp(item.Timestamp)

	for k, v := range md {
		if _, reserved := reservedItemKeys[k]; reserved {
			continue
		}
		if item.Extra == nil {
			item.Extra = map[string]string{}
		}
		item.Extra[k] = v
	}
	return item
}

func keywordDocument(id, text string, md vectorindex.Metadata) *search.Document {
	created, _ := parseTimestamp(md[keyTimestamp])
	return &search.Document{
		ID:        id,
		Title:     md[keyTitle],
		Content:   text,
		Source:    md[keySource],
		Topics:    splitTopics(md[keyTopics]),
		URL:       md[keyURL],
		CreatedAt: created,
	}
}

package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/renderinc/briefing/internal/vectorindex"
)

const (
	recentDigestLimit = 5
	topTopicLimit     = 10
)

// ContextSummary aggregates both collections without modifying them
func (a *Archive) ContextSummary(ctx context.Context) (ContextSummary, error) {
	start := time.Now()
	items, digests, _, err := a.handles()
	if err != nil {
		return ContextSummary{}, err
	}

	summary, err := a.contextSummary(ctx, items, digests)
	a.observe("context_summary", start, err)
	if err != nil {
		a.logger.Error("Failed to build context summary", "error", err)
		return ContextSummary{RecentDigests: []RecentDigest{}, TrendingTopics: []TopicCount{}, LastItemDate: "Unknown"}, nil
	}
	return summary, nil
}

func (a *Archive) contextSummary(ctx context.Context, items, digests vectorindex.Index) (ContextSummary, error) {
	var s ContextSummary
	var err error

	if s.TotalItems, err = items.Count(ctx); err != nil {
		return s, fmt.Errorf("count items: %w", err)
	}
	if s.TotalDigests, err = digests.Count(ctx); err != nil {
		return s, fmt.Errorf("count digests: %w", err)
	}

	recent, err := a.searchDigests(ctx, digests, recentDays, "")
	if err != nil {
		return s, fmt.Errorf("list recent digests: %w", err)
	}
	s.RecentDigests = make([]RecentDigest, 0, recentDigestLimit)
	for _, d := range recent[:min(len(recent), recentDigestLimit)] {
		s.RecentDigests = append(s.RecentDigests, RecentDigest{
			DigestID:     d.DigestID,
			Title:        d.Title,
			Date:         d.CreatedAt.Format("2006-01-02"),
			ReadingTime:  d.TotalReadingTimeMinutes,
			ArticleCount: d.ArticleCount,
		})
	}

	records, err := items.ListAll(ctx)
	if err != nil {
		return s, fmt.Errorf("list items: %w", err)
	}
	s.TrendingTopics = topTopics(records, topTopicLimit)

	s.LastItemDate = "Never"
	var last time.Time
	for _, rec := range records {
		if t, ok := parseTimestamp(rec.Metadata[keyTimestamp]); ok && t.After(last) {
			last = t
		}
	}
	if !last.IsZero() {
		s.LastItemDate = last.Format("2006-01-02")
	}
	return s, nil
}

// Stats breaks the archive down by source and topic
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	start := time.Now()
	items, digests, _, err := a.handles()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	st.Limits.MaxItems = a.cfg.MaxItems
	st.Limits.MaxAgeDays = a.cfg.MaxAgeDays
	st.Items.Sources = map[string]int{}
	st.Items.TopTopics = []TopicCount{}

	err = func() error {
		records, err := items.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		st.Items.Total = len(records)
		for _, rec := range records {
			source := rec.Metadata[keySource]
			if source == "" {
				source = "unknown"
			}
			st.Items.Sources[source]++
		}
		st.Items.TopTopics = topTopics(records, topTopicLimit)

		if st.Digests.Total, err = digests.Count(ctx); err != nil {
			return fmt.Errorf("count digests: %w", err)
		}
		return nil
	}()

	a.observe("stats", start, err)
	if err != nil {
		a.logger.Error("Failed to build stats", "error", err)
		return st, fmt.Errorf("archive stats: %w", err)
	}
	return st, nil
}

// topTopics counts topic tags, most frequent first, ties alphabetical
func topTopics(records []vectorindex.Record, limit int) []TopicCount {
	counts := map[string]int{}
	for _, rec := range records {
		for _, t := range splitTopics(rec.Metadata[keyTopics]) {
			counts[t]++
		}
	}

	out := make([]TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

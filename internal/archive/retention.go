package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/renderinc/briefing/internal/search"
	"github.com/renderinc/briefing/internal/vectorindex"
)

// RunRetentionSweep evicts by age, then trims each collection to MaxItems
// oldest first. Safe to run alongside ingestion: targets come from a
// snapshot, so an item written mid-sweep may survive until the next run.
// Failures are logged and collected in the result.
func (a *Archive) RunRetentionSweep(ctx context.Context) SweepResult {
	items, digests, keywords, err := a.handles()
	if err != nil {
		return SweepResult{Errors: []string{err.Error()}}
	}
	return a.sweep(ctx, items, digests, keywords)
}

func (a *Archive) sweep(ctx context.Context, items, digests vectorindex.Index, keywords *search.Index) SweepResult {
	start := time.Now()
	var res SweepResult

	// Items at exactly now-MaxAge are kept
	cutoff := a.now().UTC().Add(-a.cfg.MaxAge())

	onDelete := func(ids []string) {
		if keywords == nil {
			return
		}
		if err := keywords.Delete(ids...); err != nil {
			a.logger.Warn("Keyword index delete failed", "count", len(ids), "error", err)
		}
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
			a.logger.Error("Retention sweep step failed", "error", err)
		}
	}

	var err error
	res.ItemsAgeEvicted, err = a.evictOlderThan(ctx, ItemCollection, items, cutoff, onDelete)
	collect(err)
	res.DigestsAgeEvicted, err = a.evictOlderThan(ctx, DigestCollection, digests, cutoff, nil)
	collect(err)
	res.ItemsSizeEvicted, err = a.enforceSizeLimit(ctx, ItemCollection, items, onDelete)
	collect(err)
	res.DigestsSizeEvicted, err = a.enforceSizeLimit(ctx, DigestCollection, digests, nil)
	collect(err)

	a.recordSize(ctx, ItemCollection, items)
	a.recordSize(ctx, DigestCollection, digests)

	res.Errors = errs
	var sweepErr error
	if len(errs) > 0 {
		sweepErr = fmt.Errorf("%d sweep steps failed", len(errs))
	}
	a.observe("retention_sweep", start, sweepErr)

	a.logger.Info("Retention sweep finished",
		"items_age", res.ItemsAgeEvicted, "items_size", res.ItemsSizeEvicted,
		"digests_age", res.DigestsAgeEvicted, "digests_size", res.DigestsSizeEvicted,
		"errors", len(errs))
	return res
}

// evictOlderThan deletes entries created strictly before cutoff.
// Entries with unparseable timestamps are left alone.
func (a *Archive) evictOlderThan(ctx context.Context, name string, c vectorindex.Index, cutoff time.Time, onDelete func([]string)) (int, error) {
	records, err := c.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", name, err)
	}

	var old []string
	for _, rec := range records {
		t, ok := parseTimestamp(rec.Metadata[keyTimestamp])
		if !ok {
			continue
		}
		if t.Before(cutoff) {
			old = append(old, rec.ID)
		}
	}
	if len(old) == 0 {
		return 0, nil
	}

	if err := c.Delete(ctx, old...); err != nil {
		return 0, fmt.Errorf("delete old %s: %w", name, err)
	}
	if onDelete != nil {
		onDelete(old)
	}

	a.logger.Info("Cleaned up old entries", "collection", name, "count", len(old))
	return len(old), nil
}

// enforceSizeLimit deletes the oldest entries past MaxItems.
// Unparseable timestamps count as oldest.
func (a *Archive) enforceSizeLimit(ctx context.Context, name string, c vectorindex.Index, onDelete func([]string)) (int, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	if count <= a.cfg.MaxItems {
		return 0, nil
	}

	records, err := c.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", name, err)
	}
	excess := len(records) - a.cfg.MaxItems
	if excess <= 0 {
		return 0, nil
	}

	type aged struct {
		id    string
		at    time.Time
		valid bool
	}
	entries := make([]aged, len(records))
	for i, rec := range records {
		t, ok := parseTimestamp(rec.Metadata[keyTimestamp])
		entries[i] = aged{id: rec.ID, at: t, valid: ok}
	}

	// Oldest first
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].valid != entries[j].valid {
			return !entries[i].valid
		}
		if !entries[i].at.Equal(entries[j].at) {
			return entries[i].at.Before(entries[j].at)
		}
		return entries[i].id < entries[j].id
	})

	oldest := make([]string, excess)
	for i := range oldest {
		oldest[i] = entries[i].id
	}

	if err := c.Delete(ctx, oldest...); err != nil {
		return 0, fmt.Errorf("delete oldest %s: %w", name, err)
	}
	if onDelete != nil {
		onDelete(oldest)
	}

	a.logger.Info("Removed oldest entries to enforce size limit", "collection", name, "count", excess)
	return excess, nil
}

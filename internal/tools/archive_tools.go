package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/renderinc/briefing/internal/archive"
)

// Archive is the archive surface the tools expose
type Archive interface {
	PutItem(ctx context.Context, in archive.ItemInput) archive.PutItemResult
	GetItem(ctx context.Context, id string) (*archive.ContentItem, error)
	SearchItems(ctx context.Context, q archive.ItemQuery) ([]archive.ContentItem, error)
	DeleteItem(ctx context.Context, id string) (bool, error)
	PutDigest(ctx context.Context, id string, d *archive.Digest) archive.PutDigestResult
	SearchDigests(ctx context.Context, daysBack int, query string) ([]archive.DigestSnapshot, error)
	LatestDigest(ctx context.Context) (*archive.DigestSnapshot, error)
	ContextSummary(ctx context.Context) (archive.ContextSummary, error)
	Stats(ctx context.Context) (archive.Stats, error)
	RunRetentionSweep(ctx context.Context) archive.SweepResult
}

// URLIngester fetches a page and archives it
type URLIngester interface {
	IngestURL(ctx context.Context, url, source string, topics []string) archive.PutItemResult
}

// funcTool adapts a closure to Tool
type funcTool struct {
	name        string
	description string
	parameters  map[string]any
	run         func(ctx context.Context, args string) (any, error)
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Parameters() map[string]any { return t.parameters }

func (t *funcTool) Execute(ctx context.Context, args string) (Result, error) {
	out, err := t.run(ctx, args)
	if err != nil {
		return Result{Error: err.Error()}, nil
	}
	return encode(out)
}

// failure lets a tool return a structured body and still flag an error
type failure struct {
	body any
	msg  string
}

func (f failure) Error() string { return f.msg }

func encode(v any) (Result, error) {
	if f, ok := v.(failure); ok {
		res, err := encode(f.body)
		res.Error = f.msg
		return res, err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode tool output: %w", err)
	}
	return Result{Output: string(b)}, nil
}

func decode[T any](args string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var stringList = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

// RegisterArchiveTools registers every archive operation. ingester may be
// nil, in which case ingest_url is left out.
func RegisterArchiveTools(r *Registry, a Archive, ingester URLIngester) {
	r.Register(&funcTool{
		name:        "put_item",
		description: "Archive a content item. Omit content_id to derive one from source, date and URL; re-archiving the same URL on the same day replaces the earlier entry.",
		parameters: object([]string{"url", "content"}, map[string]any{
			"content_id": map[string]any{"type": "string", "description": "Explicit id; derived when omitted"},
			"url":        map[string]any{"type": "string"},
			"content":    map[string]any{"type": "string", "minLength": 1, "description": "Full text"},
			"title":      map[string]any{"type": "string"},
			"source":     map[string]any{"type": "string", "description": "Source tag such as hn or web (default web)"},
			"topics":     stringList,
			"summary":    map[string]any{"type": "string"},
			"metadata":   map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[archive.ItemInput](args)
			if err != nil {
				return nil, err
			}
			res := a.PutItem(ctx, in)
			if !res.Success {
				return failure{body: res, msg: res.Error}, nil
			}
			return res, nil
		},
	})

	r.Register(&funcTool{
		name:        "get_item",
		description: "Fetch an archived item by content id, with its full text and a preview.",
		parameters: object([]string{"content_id"}, map[string]any{
			"content_id": map[string]any{"type": "string", "minLength": 1},
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[struct {
				ContentID string `json:"content_id"`
			}](args)
			if err != nil {
				return nil, err
			}
			item, err := a.GetItem(ctx, in.ContentID)
			if err != nil {
				return nil, err
			}
			if item == nil {
				return nil, fmt.Errorf("content not found: %s", in.ContentID)
			}
			return item, nil
		},
	})

	r.Register(&funcTool{
		name:        "search_items",
		description: "Search archived items by similarity. Optional exact source filter and topic substring filter.",
		parameters: object([]string{"query"}, map[string]any{
			"query":          map[string]any{"type": "string"},
			"limit":          map[string]any{"type": "integer", "minimum": 1, "maximum": 50, "default": 5},
			"source_filter":  map[string]any{"type": "string"},
			"topic_filter":   map[string]any{"type": "string"},
			"mode":           map[string]any{"type": "string", "enum": []string{archive.ModeSemantic, archive.ModeKeyword, archive.ModeHybrid}},
			"keyword_weight": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		}),
		run: func(ctx context.Context, args string) (any, error) {
			q, err := decode[archive.ItemQuery](args)
			if err != nil {
				return nil, err
			}
			items, err := a.SearchItems(ctx, q)
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": len(items), "items": items}, nil
		},
	})

	r.Register(&funcTool{
		name:        "delete_item",
		description: "Remove an archived item.",
		parameters: object([]string{"content_id"}, map[string]any{
			"content_id": map[string]any{"type": "string", "minLength": 1},
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[struct {
				ContentID string `json:"content_id"`
			}](args)
			if err != nil {
				return nil, err
			}
			removed, err := a.DeleteItem(ctx, in.ContentID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"content_id": in.ContentID, "removed": removed}, nil
		},
	})

	r.Register(&funcTool{
		name:        "put_digest",
		description: "Archive an assembled digest. Article count and reading time are recomputed from its sections.",
		parameters: object([]string{"digest"}, map[string]any{
			"digest_id": map[string]any{"type": "string", "description": "Defaults to digest_YYYYMMDD_HHMMSS"},
			"digest": object([]string{"title"}, map[string]any{
				"title":        map[string]any{"type": "string"},
				"subtitle":     map[string]any{"type": "string"},
				"edition_type": map[string]any{"type": "string"},
				"metadata":     map[string]any{"type": "object"},
				"sections": map[string]any{
					"type": "array",
					"items": object([]string{"title"}, map[string]any{
						"title":    map[string]any{"type": "string"},
						"layout":   map[string]any{"type": "string"},
						"articles": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
					}),
				},
			}),
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[struct {
				DigestID string          `json:"digest_id"`
				Digest   *archive.Digest `json:"digest"`
			}](args)
			if err != nil {
				return nil, err
			}
			res := a.PutDigest(ctx, in.DigestID, in.Digest)
			if !res.Success {
				return failure{body: res, msg: res.Error}, nil
			}
			return res, nil
		},
	})

	r.Register(&funcTool{
		name:        "search_digests",
		description: "List digests from the last days_back days, newest first. A query narrows the candidates by similarity; order stays by date.",
		parameters: object(nil, map[string]any{
			"days_back": map[string]any{"type": "integer", "minimum": 1, "default": 7},
			"query":     map[string]any{"type": "string"},
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[struct {
				DaysBack int    `json:"days_back"`
				Query    string `json:"query"`
			}](args)
			if err != nil {
				return nil, err
			}
			digests, err := a.SearchDigests(ctx, in.DaysBack, in.Query)
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": len(digests), "digests": digests}, nil
		},
	})

	r.Register(&funcTool{
		name:        "latest_digest",
		description: "Return the most recent digest of the last 30 days.",
		parameters:  object(nil, map[string]any{}),
		run: func(ctx context.Context, _ string) (any, error) {
			d, err := a.LatestDigest(ctx)
			if err != nil {
				return nil, err
			}
			if d == nil {
				return nil, fmt.Errorf("no digests in the last 30 days")
			}
			return d, nil
		},
	})

	r.Register(&funcTool{
		name:        "context_summary",
		description: "Snapshot of the archive: totals, recent digests, trending topics and the last item date.",
		parameters:  object(nil, map[string]any{}),
		run: func(ctx context.Context, _ string) (any, error) {
			return a.ContextSummary(ctx)
		},
	})

	r.Register(&funcTool{
		name:        "archive_stats",
		description: "Per-source and per-topic counts plus the configured retention limits.",
		parameters:  object(nil, map[string]any{}),
		run: func(ctx context.Context, _ string) (any, error) {
			return a.Stats(ctx)
		},
	})

	r.Register(&funcTool{
		name:        "run_retention_sweep",
		description: "Evict entries past the age limit, then trim each collection to its size cap.",
		parameters:  object(nil, map[string]any{}),
		run: func(ctx context.Context, _ string) (any, error) {
			res := a.RunRetentionSweep(ctx)
			if len(res.Errors) > 0 {
				return failure{body: res, msg: fmt.Sprintf("sweep finished with %d errors", len(res.Errors))}, nil
			}
			return res, nil
		},
	})

	if ingester == nil {
		return
	}

	r.Register(&funcTool{
		name:        "ingest_url",
		description: "Fetch a web page, extract the article text and archive it.",
		parameters: object([]string{"url"}, map[string]any{
			"url":    map[string]any{"type": "string", "pattern": "^https?://"},
			"source": map[string]any{"type": "string"},
			"topics": stringList,
		}),
		run: func(ctx context.Context, args string) (any, error) {
			in, err := decode[struct {
				URL    string   `json:"url"`
				Source string   `json:"source"`
				Topics []string `json:"topics"`
			}](args)
			if err != nil {
				return nil, err
			}
			res := ingester.IngestURL(ctx, in.URL, in.Source, in.Topics)
			if !res.Success {
				return failure{body: res, msg: res.Error}, nil
			}
			return res, nil
		},
	})
}

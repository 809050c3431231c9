// Package search keeps a Bleve keyword index over archived items and merges
// keyword hits with semantic hits for hybrid queries.
package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// Document represents an item in the search index
type Document struct {
	ID        string
	Title     string
	Content   string
	Source    string
	Topics    []string
	URL       string
	CreatedAt time.Time
}

// Result represents a search hit
type Result struct {
	ID        string
	Title     string
	Source    string
	URL       string
	Score     float64
	Fragments map[string][]string // Highlighted snippets
}

// Open opens or creates a Bleve index on disk
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenMemory creates an index that lives only in memory
func OpenMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping creates the item mapping with an English analyzer on titles
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en" // English analyzer for better stemming

	// Source and URL are matched whole
	exactFieldMapping := bleve.NewTextFieldMapping()
	exactFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", exactFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Source", exactFieldMapping)
	docMapping.AddFieldMappingsAt("Topics", textFieldMapping)
	docMapping.AddFieldMappingsAt("URL", exactFieldMapping)
	docMapping.AddFieldMappingsAt("CreatedAt", bleve.NewDateTimeFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexItem adds or updates a document in the index
func (i *Index) IndexItem(doc *Document) error {
	if err := i.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes documents from the index
func (i *Index) Delete(ids ...string) error {
	if len(ids) == 1 {
		return i.index.Delete(ids[0])
	}

	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Search performs a query string search (supports quotes, boolean operators, fuzzy ~)
func (i *Index) Search(queryStr string, limit int) ([]*Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"Title", "Source", "URL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &Result{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if source, ok := hit.Fields["Source"].(string); ok {
			result.Source = source
		}
		if url, ok := hit.Fields["URL"].(string); ok {
			result.URL = url
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Rebuild makes the index hold exactly docs, dropping anything else
func (i *Index) Rebuild(docs []*Document) error {
	keep := make(map[string]struct{}, len(docs))
	batch := i.index.NewBatch()
	for _, doc := range docs {
		keep[doc.ID] = struct{}{}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}

	stale, err := i.allIDs()
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (i *Index) allIDs() ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]string, len(res.Hits))
	for n, hit := range res.Hits {
		ids[n] = hit.ID
	}
	return ids, nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

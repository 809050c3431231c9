package search

import (
	"fmt"
	"sort"
)

// DefaultKeywordWeight favours keyword hits in hybrid search
const DefaultKeywordWeight = 0.7

// Merge combines keyword results with semantic results.
// keywordWeight: 0.0-1.0, weight for keyword results (e.g., 0.7 = 70% keyword, 30% semantic)
// Both inputs are min/max normalised before weighting; inputs are not modified.
func Merge(keyword, semantic []*Result, limit int, keywordWeight float64) ([]*Result, error) {
	if keywordWeight < 0 || keywordWeight > 1 {
		return nil, fmt.Errorf("keywordWeight must be between 0 and 1")
	}
	semanticWeight := 1.0 - keywordWeight

	// 1. Normalize scores to 0-1 range for each result set
	keywordScores := normalizeScores(keyword)
	semanticScores := normalizeScores(semantic)

	// 2. Combine scores by document ID
	scoreMap := make(map[string]*Result, len(keyword)+len(semantic))

	for _, r := range keyword {
		merged := *r
		merged.Score = keywordScores[r.ID] * keywordWeight
		scoreMap[r.ID] = &merged
	}

	for _, r := range semantic {
		if existing, found := scoreMap[r.ID]; found {
			// Document appears in both - combine scores
			existing.Score += semanticScores[r.ID] * semanticWeight
			continue
		}
		merged := *r
		merged.Score = semanticScores[r.ID] * semanticWeight
		scoreMap[r.ID] = &merged
	}

	// 3. Convert map to slice and sort by combined score
	combined := make([]*Result, 0, len(scoreMap))
	for _, r := range scoreMap {
		combined = append(combined, r)
	}

	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].ID < combined[j].ID
	})

	// 4. Return top N
	if limit >= 0 && len(combined) > limit {
		combined = combined[:limit]
	}

	return combined, nil
}

// normalizeScores normalizes result scores to 0-1 range
// Returns a map of ID -> normalized score
func normalizeScores(results []*Result) map[string]float64 {
	if len(results) == 0 {
		return make(map[string]float64)
	}

	minScore := results[0].Score
	maxScore := results[0].Score
	for _, r := range results {
		minScore = min(minScore, r.Score)
		maxScore = max(maxScore, r.Score)
	}

	normalized := make(map[string]float64, len(results))
	scoreRange := maxScore - minScore

	for _, r := range results {
		if scoreRange == 0 {
			// All scores are the same - assign 1.0 to all
			normalized[r.ID] = 1.0
		} else {
			normalized[r.ID] = (r.Score - minScore) / scoreRange
		}
	}

	return normalized
}

package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const wordsPerMinute = 200

// wordCount counts whitespace-separated words
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// readingTime is max(1, words/200)
func readingTime(words int) int {
	return max(1, words/wordsPerMinute)
}

// truncateRunes cuts s to at most n characters without splitting a rune
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// preview returns the first n characters, marking the cut with "..."
func preview(s string, n int) string {
	p := truncateRunes(s, n)
	if len(p) < len(s) {
		return p + "..."
	}
	return p
}

// DeriveContentID builds "cnt_<source>_<YYYYMMDD>_<hash mod 10000>".
// The same source, UTC day and key always produce the same id.
func DeriveContentID(source string, at time.Time, key string) string {
	return fmt.Sprintf("cnt_%s_%s_%04d", source, at.UTC().Format("20060102"), xxhash.Sum64String(key)%10000)
}

// timestampLayout is how the archive writes created_at
const timestampLayout = time.RFC3339Nano

// inputLayouts are accepted when reading timestamps back or from callers
var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp reads a stored timestamp; ok is false when it is malformed.
// Timestamps without a zone are taken as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func joinTopics(topics []string) string {
	return strings.Join(topics, ",")
}

func splitTopics(s string) []string {
	if s == "" {
		return []string{}
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t != "" {
			out = append(out, t)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

// cleanTopics trims, drops empties and commas, and dedupes preserving order
func cleanTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// clampSimilarity turns a cosine distance into a similarity in [0,1]
func clampSimilarity(distance float32, has bool) float64 {
	if !has {
		return 0
	}
	return min(1, max(0, 1-float64(distance)))
}

package archive

import "time"

// ContentItem is a single archived piece of content
type ContentItem struct {
	ContentID          string            `json:"content_id"`
	URL                string            `json:"url"`
	Title              string            `json:"title"`
	Source             string            `json:"source"`
	Topics             []string          `json:"topics"`
	Summary            string            `json:"summary,omitempty"`
	Body               string            `json:"content,omitempty"`
	Preview            string            `json:"content_preview"`
	WordCount          int               `json:"word_count"`
	ReadingTimeMinutes int               `json:"reading_time"`
	CreatedAt          time.Time         `json:"-"`
	Timestamp          string            `json:"timestamp"`
	Similarity         float64           `json:"similarity,omitempty"`
	Extra              map[string]string `json:"metadata,omitempty"`
}

// DigestSnapshot is the stored summary of one assembled digest
type DigestSnapshot struct {
	DigestID                string    `json:"digest_id"`
	Title                   string    `json:"title"`
	Subtitle                string    `json:"subtitle,omitempty"`
	EditionType             string    `json:"edition_type"`
	Topics                  []string  `json:"topics"`
	Tone                    string    `json:"tone"`
	CreatedAt               time.Time `json:"-"`
	Timestamp               string    `json:"timestamp"`
	ArticleCount            int       `json:"article_count"`
	TotalReadingTimeMinutes int       `json:"reading_time"`
}

// ItemInput is the payload for PutItem. Empty ContentID derives one.
type ItemInput struct {
	ContentID string            `json:"content_id,omitempty"`
	URL       string            `json:"url"`
	Body      string            `json:"content"`
	Title     string            `json:"title,omitempty"`
	Source    string            `json:"source,omitempty"`
	Topics    []string          `json:"topics,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Search modes
const (
	ModeSemantic = "semantic"
	ModeKeyword  = "keyword"
	ModeHybrid   = "hybrid"
)

// ItemQuery parameterises SearchItems
type ItemQuery struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Source string `json:"source_filter,omitempty"`
	Topic  string `json:"topic_filter,omitempty"`

	// Mode is semantic (default), keyword or hybrid
	Mode          string   `json:"mode,omitempty"`
	KeywordWeight *float64 `json:"keyword_weight,omitempty"`
}

// Digest is the assembled structure handed to PutDigest
type Digest struct {
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle,omitempty"`
	EditionType string          `json:"edition_type,omitempty"`
	Metadata    DigestMetadata  `json:"metadata"`
	Sections    []DigestSection `json:"sections"`
}

// DigestMetadata carries caller-supplied totals. ArticleCount and
// TotalReadingTime are ignored on store and recomputed from Sections.
type DigestMetadata struct {
	CreatedAt        string   `json:"created_at,omitempty"`
	Topics           []string `json:"topics,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	ArticleCount     int      `json:"article_count,omitempty"`
	TotalReadingTime int      `json:"total_reading_time,omitempty"`
}

// DigestSection groups articles under a heading
type DigestSection struct {
	Title    string          `json:"title"`
	Layout   string          `json:"layout,omitempty"`
	Articles []DigestArticle `json:"articles"`
}

// DigestArticle is one article inside a section
type DigestArticle struct {
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	URL       string        `json:"url,omitempty"`
	ContentID string        `json:"content_id,omitempty"`
	Topics    []string      `json:"topics,omitempty"`
	Format    ArticleFormat `json:"format"`
}

// ArticleFormat holds presentation hints for an article
type ArticleFormat struct {
	ReadingTime int    `json:"reading_time,omitempty"`
	Style       string `json:"style,omitempty"`
	Highlight   bool   `json:"highlight,omitempty"`
}

// PutItemResult reports the outcome of PutItem
type PutItemResult struct {
	Success   bool   `json:"success"`
	ContentID string `json:"content_id"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PutDigestResult reports the outcome of PutDigest
type PutDigestResult struct {
	Success            bool   `json:"success"`
	DigestID           string `json:"digest_id"`
	Timestamp          string `json:"timestamp,omitempty"`
	ArticleCount       int    `json:"article_count"`
	ReadingTimeMinutes int    `json:"reading_time"`
	Error              string `json:"error,omitempty"`
}

// SweepResult reports what one retention sweep removed
type SweepResult struct {
	ItemsAgeEvicted    int      `json:"items_age_evicted"`
	ItemsSizeEvicted   int      `json:"items_size_evicted"`
	DigestsAgeEvicted  int      `json:"digests_age_evicted"`
	DigestsSizeEvicted int      `json:"digests_size_evicted"`
	Errors             []string `json:"errors,omitempty"`
}

// TopicCount is a topic with its frequency
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// RecentDigest is the abbreviated digest listed in a context summary
type RecentDigest struct {
	DigestID     string `json:"digest_id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	ReadingTime  int    `json:"reading_time"`
	ArticleCount int    `json:"article_count"`
}

// ContextSummary is a quick snapshot of archive state
type ContextSummary struct {
	TotalItems     int            `json:"total_items"`
	TotalDigests   int            `json:"total_digests"`
	RecentDigests  []RecentDigest `json:"recent_digests"`
	TrendingTopics []TopicCount   `json:"trending_topics"`
	LastItemDate   string         `json:"last_item_date"`
}

// Stats breaks down both collections
type Stats struct {
	Items struct {
		Total     int            `json:"total"`
		Sources   map[string]int `json:"sources"`
		TopTopics []TopicCount   `json:"top_topics"`
	} `json:"item_archive"`
	Digests struct {
		Total int `json:"total"`
	} `json:"digest_archive"`
	Limits struct {
		MaxItems   int `json:"max_items_per_collection"`
		MaxAgeDays int `json:"max_age_days"`
	} `json:"limits"`
}

package hn

import "time"

// Item is a Hacker News item (story, job, Ask HN)
type Item struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"` // HTML body of Ask HN and job posts
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// CreatedAt converts the Unix timestamp
func (i *Item) CreatedAt() time.Time {
	return time.Unix(i.Time, 0).UTC()
}

// DiscussionURL is the item's page on news.ycombinator.com
func (i *Item) DiscussionURL() string {
	return "https://news.ycombinator.com/item?id=" + itoa(i.ID)
}

// Link is the story URL, or the discussion page for text posts
func (i *Item) Link() string {
	if i.URL != "" {
		return i.URL
	}
	return i.DiscussionURL()
}

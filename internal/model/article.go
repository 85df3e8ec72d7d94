package model

import "time"

// Article is a fetched news article that passed content extraction.
type Article struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Excerpt      string    `json:"excerpt,omitempty"`
	Site         string    `json:"site"`
	Keywords     []string  `json:"keywords,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Empty reports whether there is no text to match keywords against.
func (a Article) Empty() bool {
	return a.Title == "" && a.Body == ""
}

// ProcessedURL is one entry of the URL ledger.
type ProcessedURL struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Site      string    `json:"site"`
	Timestamp time.Time `json:"timestamp"`
}

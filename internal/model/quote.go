package model

import "time"

// Quote is a quoted span harvested from an article. ID is the content hash
// of NormalizedText.
type Quote struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalized_text"`
	ArticleURL     string    `json:"article_url"`
	ArticleTitle   string    `json:"article_title"`
	Source         string    `json:"source"`
	Score          *float64  `json:"score"`
	Processed      bool      `json:"processed"`
	Timestamp      time.Time `json:"timestamp"`
}

// QueueEntry is a quote waiting in (or already served from) the display queue.
type QueueEntry struct {
	ID               string     `json:"id"`
	SourceID         string     `json:"source_id"`
	Text             string     `json:"text"`
	Source           string     `json:"source"`
	Seq              int64      `json:"seq"`
	Displayed        bool       `json:"displayed"`
	DisplayTimestamp *time.Time `json:"display_timestamp"`
	DisplayDeviceID  *string    `json:"display_device_id"`
}

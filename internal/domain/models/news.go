package models

import "time"

// NewsItem is a breaking headline from an RSS feed or a news stream.
type NewsItem struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	URL       string    `json:"url,omitempty"`
	Published time.Time `json:"published"`
}

package domain

import "time"

// FetchResult is the outcome of one logical fetch. It is never mutated after
// being produced; the content cache stores it keyed by source and URL.
type FetchResult struct {
	Content    string    `json:"content"`
	StatusCode int       `json:"status_code"`
	URL        string    `json:"url"`
	FetchedAt  time.Time `json:"fetched_at"`
	FromCache  bool      `json:"from_cache"`
}

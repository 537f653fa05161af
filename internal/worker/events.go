package worker

import "khabar/internal/news"

// ArticleEvent is the body of a news.article message: an article that an
// external producer already extracted.
type ArticleEvent struct {
	news.Article
	CorrelationID string `json:"correlation_id,omitempty"`
}

// FetchTask is the body of a news.fetch message. Attempt counts how many
// times the URL has already failed.
type FetchTask struct {
	URL           string `json:"url"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
}

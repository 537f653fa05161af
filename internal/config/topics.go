package config

const (
	// TopicArticle carries fully extracted articles published by external producers.
	TopicArticle = "news.article"

	// TopicFetch carries single URL fetch tasks (sitemap backfill, retried failures).
	TopicFetch = "news.fetch"
)

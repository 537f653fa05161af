// Package ingest runs articles through chunk, embed and persist, either as
// an incremental refresh or as a batched historical backfill.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"khabar/internal/news"
	"khabar/internal/store"
	"khabar/internal/text"
)

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	NextChunkID(ctx context.Context) (uint64, error)
	SeenURLs(ctx context.Context) (news.URLSet, error)
	Persist(ctx context.Context, chunks []news.Chunk, vectors [][]float32) (store.PersistResult, error)
}

type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

// Result summarizes one ingestion.
type Result struct {
	Articles int `json:"articles"`
	Invalid  int `json:"invalid"`
	Seen     int `json:"already_seen"`
	Chunks   int `json:"chunks"`
	Rows     int `json:"rows"`
	Vectors  int `json:"vectors"`
}

func (r *Result) add(o Result) {
	r.Articles += o.Articles
	r.Invalid += o.Invalid
	r.Seen += o.Seen
	r.Chunks += o.Chunks
	r.Rows += o.Rows
	r.Vectors += o.Vectors
}

// Pipeline is the single writer. Ingest calls are serialized.
type Pipeline struct {
	mu       sync.Mutex
	store    Store
	embedder Embedder
	cfg      Config
}

func NewPipeline(s Store, e Embedder, cfg Config) *Pipeline {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	return &Pipeline{store: s, embedder: e, cfg: cfg}
}

// Ingest stores the articles whose URL is not yet persisted. The seen set
// is read from the store before any chunking or embedding, so ingesting
// the same articles twice does no work the second time. Invalid articles
// are skipped.
func (p *Pipeline) Ingest(ctx context.Context, articles []news.Article) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{Articles: len(articles)}
	if len(articles) == 0 {
		return res, nil
	}

	seen, err := p.store.SeenURLs(ctx)
	if err != nil {
		return res, fmt.Errorf("load seen urls: %w", err)
	}

	fresh := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if err := a.Validate(); err != nil {
			slog.WarnContext(ctx, "skipping invalid article", "url", a.URL, "error", err)
			res.Invalid++
			continue
		}
		if seen.Has(a.URL) {
			res.Seen++
			continue
		}
		seen.Add(a.URL)
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		slog.InfoContext(ctx, "nothing new to ingest", "articles", len(articles), "seen", res.Seen, "invalid", res.Invalid)
		return res, nil
	}

	next, err := p.store.NextChunkID(ctx)
	if err != nil {
		return res, fmt.Errorf("next chunk id: %w", err)
	}
	chunks := text.ChunkArticles(fresh, next, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		return res, nil
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return res, err
	}

	persisted, err := p.store.Persist(ctx, chunks, vectors)
	if err != nil {
		return res, fmt.Errorf("persist: %w", err)
	}
	res.Rows = persisted.Rows
	res.Vectors = persisted.Vectors

	slog.InfoContext(ctx, "articles ingested", "articles", len(fresh), "chunks", res.Chunks, "rows", res.Rows, "first_chunk_id", next)
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []news.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

// ArticleSource produces articles, skipping the URLs in seen.
type ArticleSource interface {
	Articles(ctx context.Context, seen news.URLSet) ([]news.Article, error)
}

// Refresh ingests whatever src has that the store has not seen. Finding
// nothing new is not an error.
func (p *Pipeline) Refresh(ctx context.Context, src ArticleSource) (Result, error) {
	seen, err := p.store.SeenURLs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load seen urls: %w", err)
	}
	slog.InfoContext(ctx, "refresh started", "known_urls", len(seen))

	articles, err := src.Articles(ctx, seen)
	if err != nil {
		return Result{}, fmt.Errorf("collect articles: %w", err)
	}
	return p.Ingest(ctx, articles)
}

// StaticSource serves a fixed set of articles, for producers that push
// articles instead of being polled.
type StaticSource []news.Article

func (s StaticSource) Articles(_ context.Context, seen news.URLSet) ([]news.Article, error) {
	out := make([]news.Article, 0, len(s))
	for _, a := range s {
		if !seen.Has(a.URL) {
			out = append(out, a)
		}
	}
	return out, nil
}

// URLDiscoverer lists candidate article URLs published in a year.
type URLDiscoverer interface {
	Discover(ctx context.Context, year int) ([]string, error)
}

// ArticleFetcher downloads articles. URLs that fail are left out.
type ArticleFetcher interface {
	Fetch(ctx context.Context, urls []string) ([]news.Article, error)
}

type BackfillOptions struct {
	StartYear int
	EndYear   int
	BatchSize int
}

var ErrInvalidRange = errors.New("invalid backfill range")

type BackfillResult struct {
	Result
	Years   int `json:"years"`
	Batches int `json:"batches"`
}

// Backfill walks the years oldest first. Each year's unseen URLs are split
// into batches and every batch is fetched and persisted before the next
// one starts, so an interrupted run loses at most the batch in flight and
// a rerun resumes where it stopped.
func (p *Pipeline) Backfill(ctx context.Context, d URLDiscoverer, f ArticleFetcher, opts BackfillOptions) (BackfillResult, error) {
	var total BackfillResult
	if opts.StartYear > opts.EndYear || opts.BatchSize <= 0 {
		return total, fmt.Errorf("%w: years %d-%d, batch size %d", ErrInvalidRange, opts.StartYear, opts.EndYear, opts.BatchSize)
	}

	for year := opts.StartYear; year <= opts.EndYear; year++ {
		seen, err := p.store.SeenURLs(ctx)
		if err != nil {
			return total, fmt.Errorf("load seen urls: %w", err)
		}

		candidates, err := d.Discover(ctx, year)
		if err != nil {
			return total, fmt.Errorf("discover %d: %w", year, err)
		}
		unseen := filterUnseen(candidates, seen)
		batches := (len(unseen) + opts.BatchSize - 1) / opts.BatchSize
		slog.InfoContext(ctx, "backfill year", "year", year, "candidates", len(candidates), "unseen", len(unseen), "batches", batches)

		for b := 0; b < batches; b++ {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			start := b * opts.BatchSize
			end := min(start+opts.BatchSize, len(unseen))

			seen, err := p.store.SeenURLs(ctx)
			if err != nil {
				return total, fmt.Errorf("load seen urls: %w", err)
			}
			batch := filterUnseen(unseen[start:end], seen)
			if len(batch) == 0 {
				continue
			}

			articles, err := f.Fetch(ctx, batch)
			if err != nil {
				return total, fmt.Errorf("fetch batch %d/%d of %d: %w", b+1, batches, year, err)
			}
			res, err := p.Ingest(ctx, articles)
			total.add(res)
			if err != nil {
				return total, fmt.Errorf("ingest batch %d/%d of %d: %w", b+1, batches, year, err)
			}
			total.Batches++
			slog.InfoContext(ctx, "backfill batch persisted", "year", year, "batch", b+1, "of", batches, "fetched", len(articles), "rows", res.Rows)
		}
		total.Years++
	}
	return total, nil
}

func filterUnseen(urls []string, seen news.URLSet) []string {
	out := make([]string, 0, len(urls))
	batch := news.NewURLSet()
	for _, u := range urls {
		if seen.Has(u) || batch.Has(u) {
			continue
		}
		batch.Add(u)
		out = append(out, u)
	}
	return out
}

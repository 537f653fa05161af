// Package retrieval ranks stored chunks for a question in two passes:
// similarity search blended with freshness, then a cross-encoder re-rank
// of the deduplicated pool.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"khabar/internal/news"
	"khabar/internal/settings"
	"khabar/internal/store"
)

// OverFetch is how many index candidates are requested per result.
const OverFetch = 8

const (
	HintLowerSimilarity = "lower min_similarity to accept less similar passages"
	HintWidenAge        = "increase max_age_days to include older articles"
)

type RankedChunk struct {
	news.Chunk
	Similarity  float64 `json:"similarity"`
	Freshness   float64 `json:"freshness"`
	Final       float64 `json:"final_score"`
	RerankScore float64 `json:"rerank_score"`
}

type Result struct {
	Chunks []RankedChunk `json:"chunks"`
	Hints  []string      `json:"hints,omitempty"`
}

// Options are the effective tunables for one Retrieve call.
type Options struct {
	TopK          int
	MaxAgeDays    int
	MinSimilarity float64
	SemWeight     float64
	FreshWeight   float64
	DecayRate     float64
}

func OptionsFromSettings(s settings.Settings) Options {
	return Options{
		TopK:          s.TopK,
		MaxAgeDays:    s.MaxAgeDays,
		MinSimilarity: s.MinSimilarity,
		SemWeight:     s.SemWeight,
		FreshWeight:   s.FreshWeight,
		DecayRate:     s.DecayRate,
	}
}

// Overrides replace individual defaults for one request.
type Overrides struct {
	TopK          *int     `json:"top_k,omitempty"`
	MaxAgeDays    *int     `json:"max_age_days,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]store.Candidate, error)
}

// Reranker scores each passage against the query. Scores are returned in
// passage order.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Service struct {
	embedder Embedder
	store    Searcher
	reranker Reranker
	settings SettingsProvider
	defaults Options
	logger   *QueryLogger
	now      func() time.Time
}

// NewService wires the engine. defaults are used when the settings row
// cannot be read; settings and logger may be nil.
func NewService(e Embedder, s Searcher, r Reranker, set SettingsProvider, defaults Options, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, reranker: r, settings: set, defaults: defaults, logger: l, now: time.Now}
}

// SetClock replaces the time source used for age and freshness.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Resolve merges per-request overrides onto the stored defaults.
func (s *Service) Resolve(ctx context.Context, o *Overrides) Options {
	opts := s.defaults
	if s.settings != nil {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to read retrieval settings, using configured defaults", "error", err)
		} else {
			opts = OptionsFromSettings(*cfg)
		}
	}
	if o != nil {
		if o.TopK != nil {
			opts.TopK = *o.TopK
		}
		if o.MaxAgeDays != nil {
			opts.MaxAgeDays = *o.MaxAgeDays
		}
		if o.MinSimilarity != nil {
			opts.MinSimilarity = *o.MinSimilarity
		}
	}
	return opts
}

// Search resolves options and runs Retrieve.
func (s *Service) Search(ctx context.Context, query string, o *Overrides) (*Result, error) {
	return s.Retrieve(ctx, query, s.Resolve(ctx, o))
}

// Retrieve returns up to opts.TopK chunks for query, best first. A query
// with no surviving candidates yields an empty result with tuning hints.
func (s *Service) Retrieve(ctx context.Context, query string, opts Options) (res *Result, err error) {
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", opts.TopK)
	}

	start := time.Now()
	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(ctx, QueryLogEntry{
				Query:      query,
				NumResults: len(res.Chunks),
				URLs:       resultURLs(res.Chunks),
				Duration:   time.Since(start),
			})
		}
	}()

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vec, OverFetch*opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	pool := s.score(hits, opts)
	if len(pool) == 0 {
		return &Result{Chunks: []RankedChunk{}, Hints: []string{HintLowerSimilarity, HintWidenAge}}, nil
	}
	pool = DedupeByURL(pool)

	passages := make([]string, len(pool))
	for i, c := range pool {
		passages[i] = c.Text
	}
	scores, err := s.reranker.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(pool) {
		return nil, fmt.Errorf("rerank: got %d scores for %d passages", len(scores), len(pool))
	}
	for i := range pool {
		pool[i].RerankScore = scores[i]
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].RerankScore > pool[j].RerankScore })

	if len(pool) > opts.TopK {
		pool = pool[:opts.TopK]
	}
	return &Result{Chunks: pool}, nil
}

// score applies the similarity floor and age cutoff and computes the
// blended score. Chunks with unparsable dates are kept.
func (s *Service) score(hits []store.Candidate, opts Options) []RankedChunk {
	now := s.now()
	out := make([]RankedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < opts.MinSimilarity {
			continue
		}
		if days, ok := AgeDays(h.Date, now); ok && days > opts.MaxAgeDays {
			continue
		}
		fresh := TimeDecay(h.Date, now, opts.DecayRate)
		out = append(out, RankedChunk{
			Chunk:      h.Chunk,
			Similarity: h.Similarity,
			Freshness:  fresh,
			Final:      Blend(h.Similarity, fresh, opts.SemWeight, opts.FreshWeight),
		})
	}
	return out
}

func resultURLs(chunks []RankedChunk) []string {
	urls := make([]string, len(chunks))
	for i, c := range chunks {
		urls[i] = c.URL
	}
	return urls
}

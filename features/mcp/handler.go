package mcp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"khabar/features/ask"
	"khabar/internal/retrieval"
	"khabar/internal/store"
)

const Version = "1.0.0"

var ErrMissingService = errors.New("mcp: search and ask services are required")

type Searcher interface {
	Search(ctx context.Context, query string, o *retrieval.Overrides) (*retrieval.Result, error)
}

type Asker interface {
	Ask(ctx context.Context, question string, o *retrieval.Overrides) (*ask.Answer, error)
}

type Reporter interface {
	StorageReport(ctx context.Context) (store.Report, error)
}

// Handler serves the news tools over the streamable HTTP transport.
type Handler struct {
	searcher Searcher
	asker    Asker
	reporter Reporter
	server   *mcp.Server
	http     http.Handler
}

func NewHandler(s Searcher, a Asker, r Reporter) (*Handler, error) {
	if s == nil || a == nil {
		return nil, ErrMissingService
	}
	h := &Handler{
		searcher: s,
		asker:    a,
		reporter: r,
		server:   mcp.NewServer(&mcp.Implementation{Name: "khabar-mcp", Version: Version}, nil),
	}
	h.registerTools()
	h.http = mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return h.server
	}, nil)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

// SearchInput is shared by news_search and news_ask.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the question or topic to look up in the news archive"`
	TopK          *int     `json:"top_k,omitempty" jsonschema:"number of passages to return"`
	MaxAgeDays    *int     `json:"max_age_days,omitempty" jsonschema:"ignore articles older than this many days"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"drop passages below this cosine similarity"`
}

func (in SearchInput) overrides() *retrieval.Overrides {
	return &retrieval.Overrides{TopK: in.TopK, MaxAgeDays: in.MaxAgeDays, MinSimilarity: in.MinSimilarity}
}

type PassageOutput struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Date        string  `json:"date"`
	Source      string  `json:"source"`
	Text        string  `json:"text"`
	Similarity  float64 `json:"similarity"`
	FinalScore  float64 `json:"final_score"`
	RerankScore float64 `json:"rerank_score"`
}

type SearchOutput struct {
	Results []PassageOutput `json:"results"`
	Count   int             `json:"count"`
	Hints   []string        `json:"hints,omitempty"`
}

type AskOutput struct {
	Answer   string          `json:"answer"`
	NoAnswer bool            `json:"no_answer"`
	Hints    []string        `json:"hints,omitempty"`
	Sources  []PassageOutput `json:"sources"`
}

type ReportInput struct{}

type ReportOutput struct {
	TotalChunks   int64  `json:"total_chunks"`
	TotalArticles int64  `json:"total_articles"`
	TotalSources  int64  `json:"total_sources"`
	EarliestDate  string `json:"earliest_date"`
	LatestDate    string `json:"latest_date"`
	IndexFlavor   string `json:"index_flavor"`
	IndexVectors  int    `json:"index_vectors"`
	Summary       string `json:"summary"`
}

func (h *Handler) registerTools() {
	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "news_search",
		Description: "Search the news archive. Returns the most relevant recent passages with title, date, url and scores. If nothing is returned, follow the hints (lower min_similarity or raise max_age_days).",
	}, h.handleSearch)

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        "news_ask",
		Description: "Answer a question in 2-3 sentences grounded only in archived news articles, with the sources used.",
	}, h.handleAsk)

	if h.reporter != nil {
		mcp.AddTool(h.server, &mcp.Tool{
			Name:        "storage_report",
			Description: "Summarize what the archive holds: chunk, article and source counts, date range and index size.",
		}, h.handleReport)
	}
}

func (h *Handler) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	slog.InfoContext(ctx, "mcp tool call", "tool", "news_search", "query", in.Query)
	res, err := h.searcher.Search(ctx, in.Query, in.overrides())
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, SearchOutput{
		Results: passages(res.Chunks),
		Count:   len(res.Chunks),
		Hints:   res.Hints,
	}, nil
}

func (h *Handler) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, AskOutput, error) {
	slog.InfoContext(ctx, "mcp tool call", "tool", "news_ask", "query", in.Query)
	a, err := h.asker.Ask(ctx, in.Query, in.overrides())
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Answer:   a.Text,
		NoAnswer: a.NoAnswer,
		Hints:    a.Hints,
		Sources:  passages(a.Sources),
	}, nil
}

func (h *Handler) handleReport(ctx context.Context, _ *mcp.CallToolRequest, _ ReportInput) (*mcp.CallToolResult, ReportOutput, error) {
	rep, err := h.reporter.StorageReport(ctx)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	var buf bytes.Buffer
	if err := rep.WriteText(&buf); err != nil {
		return nil, ReportOutput{}, err
	}
	return nil, ReportOutput{
		TotalChunks:   rep.TotalChunks,
		TotalArticles: rep.TotalArticles,
		TotalSources:  rep.TotalSources,
		EarliestDate:  rep.EarliestDate,
		LatestDate:    rep.LatestDate,
		IndexFlavor:   rep.IndexFlavor,
		IndexVectors:  rep.IndexVectors,
		Summary:       buf.String(),
	}, nil
}

func passages(chunks []retrieval.RankedChunk) []PassageOutput {
	out := make([]PassageOutput, len(chunks))
	for i, c := range chunks {
		out[i] = PassageOutput{
			Title:       c.Title,
			URL:         c.URL,
			Date:        c.Date,
			Source:      c.Source,
			Text:        c.Text,
			Similarity:  c.Similarity,
			FinalScore:  c.Final,
			RerankScore: c.RerankScore,
		}
	}
	return out
}

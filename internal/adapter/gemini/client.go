// Package gemini adapts the Gemini API to the embedding and generation
// capabilities used by ingestion, retrieval and answering.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	ErrNotLoaded      = errors.New("gemini client not loaded")
	ErrMissingAPIKey  = errors.New("gemini api key not configured")
	ErrEmptyEmbedding = errors.New("empty embedding received")
)

// maxBatch is the largest request the batch embedding endpoint accepts.
const maxBatch = 100

type Config struct {
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	MaxOutputTokens int32
}

// Client owns one genai client for the process. It must be loaded before
// use and closed at shutdown.
type Client struct {
	cfg  Config
	opts []option.ClientOption

	mu     sync.RWMutex
	client *genai.Client
}

func New(cfg Config, opts ...option.ClientOption) *Client {
	return &Client{cfg: cfg, opts: opts}
}

// Load connects to the API. Calling it on a loaded client is a no-op.
func (c *Client) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}

	opts := append([]option.ClientOption{option.WithAPIKey(c.cfg.APIKey)}, c.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	slog.InfoContext(ctx, "gemini client loaded", "embedding_model", c.cfg.EmbeddingModel, "generation_model", c.cfg.GenerationModel)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) get() (*genai.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotLoaded
	}
	return c.client, nil
}

// EmbedBatch embeds passages for storage, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := c.get()
	if err != nil {
		return nil, err
	}

	em := client.EmbeddingModel(c.cfg.EmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}

		slog.DebugContext(ctx, "embedding batch", "model", c.cfg.EmbeddingModel, "size", end-start)
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("batch embed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("batch embed: got %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, ErrEmptyEmbedding
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// EmbedQuery embeds a question for search.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	client, err := c.get()
	if err != nil {
		return nil, err
	}

	em := client.EmbeddingModel(c.cfg.EmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery

	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return res.Embedding.Values, nil
}

// Generate returns the model's text answer for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := c.get()
	if err != nil {
		return "", err
	}

	m := client.GenerativeModel(c.cfg.GenerationModel)
	if c.cfg.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(c.cfg.MaxOutputTokens)
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(sb.String()), nil
}

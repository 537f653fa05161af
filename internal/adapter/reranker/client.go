// Package reranker scores query/passage pairs with a hosted or self-hosted
// cross-encoder.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
	ProviderTEI    = "tei"
)

var ErrUnknownProvider = errors.New("unknown rerank provider")

// NeutralScore is returned for every passage when no provider is configured.
const NeutralScore = 0.0

type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) (*Client, error) {
	switch provider {
	case "", ProviderNone:
		provider = ProviderNone
	case ProviderJina, ProviderCohere, ProviderTEI:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

func (c *Client) Provider() string {
	return c.provider
}

// Score returns one relevance score per passage, in passage order.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	switch c.provider {
	case ProviderJina:
		return c.scoreHosted(ctx, "https://api.jina.ai/v1/rerank", map[string]interface{}{
			"model":     "jina-reranker-v2-base-multilingual",
			"query":     query,
			"documents": passages,
			"top_n":     len(passages),
		}, len(passages))
	case ProviderCohere:
		return c.scoreHosted(ctx, "https://api.cohere.ai/v1/rerank", map[string]interface{}{
			"model":            "rerank-multilingual-v3.0",
			"query":            query,
			"documents":        passages,
			"top_n":            len(passages),
			"return_documents": false,
		}, len(passages))
	case ProviderTEI:
		return c.scoreTEI(ctx, query, passages)
	}

	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = NeutralScore
	}
	return scores, nil
}

// scoreHosted handles the Jina and Cohere APIs, which share a response shape.
func (c *Client) scoreHosted(ctx context.Context, url string, body map[string]interface{}, n int) ([]float64, error) {
	if c.baseURL != "" {
		url = c.baseURL
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := c.post(ctx, url, body, &result); err != nil {
		return nil, err
	}

	scores := make([]float64, n)
	seen := 0
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= n {
			continue
		}
		scores[r.Index] = r.Score
		seen++
	}
	if seen != n {
		return nil, fmt.Errorf("%s api returned %d scores for %d passages", c.provider, seen, n)
	}
	return scores, nil
}

func (c *Client) scoreTEI(ctx context.Context, query string, passages []string) ([]float64, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("tei rerank requires RERANK_URL")
	}

	var result []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	body := map[string]interface{}{"query": query, "texts": passages}
	if err := c.post(ctx, c.baseURL, body, &result); err != nil {
		return nil, err
	}

	scores := make([]float64, len(passages))
	seen := 0
	for _, r := range result {
		if r.Index < 0 || r.Index >= len(passages) {
			continue
		}
		scores[r.Index] = r.Score
		seen++
	}
	if seen != len(passages) {
		return nil, fmt.Errorf("tei returned %d scores for %d passages", seen, len(passages))
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s api error: %d %s", c.provider, resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

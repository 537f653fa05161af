package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"khabar/internal/adapter/gemini"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"):
			var req struct {
				Requests []json.RawMessage `json:"requests"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			embeddings := make([]map[string]interface{}, len(req.Requests))
			for i := range req.Requests {
				embeddings[i] = map[string]interface{}{"values": []float32{float32(i), 1}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
		case strings.HasSuffix(r.URL.Path, ":embedContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{"values": []float32{0.1, 0.2, 0.3}},
			})
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]interface{}{{"text": " Parliament passed the budget. "}},
					},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testConfig() gemini.Config {
	return gemini.Config{
		APIKey:          "test-key",
		EmbeddingModel:  "gemini-embedding-001",
		GenerationModel: "gemini-2.0-flash",
		MaxOutputTokens: 150,
	}
}

func TestClient_NotLoaded(t *testing.T) {
	c := gemini.New(testConfig())
	ctx := context.Background()

	_, err := c.EmbedQuery(ctx, "hello")
	assert.ErrorIs(t, err, gemini.ErrNotLoaded)

	_, err = c.EmbedBatch(ctx, []string{"hello"})
	assert.ErrorIs(t, err, gemini.ErrNotLoaded)

	_, err = c.Generate(ctx, "hello")
	assert.ErrorIs(t, err, gemini.ErrNotLoaded)

	assert.NoError(t, c.Close())
}

func TestClient_LoadRequiresKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	err := gemini.New(cfg).Load(context.Background())
	assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)
}

func TestClient_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	c := gemini.New(testConfig(), option.WithEndpoint(ts.URL))
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.Load(ctx))

	t.Run("EmbedQuery", func(t *testing.T) {
		vec, err := c.EmbedQuery(ctx, "what happened in parliament")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	})

	t.Run("EmbedBatchKeepsOrder", func(t *testing.T) {
		vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for i, v := range vecs {
			assert.Equal(t, float32(i), v[0])
		}
	})

	t.Run("EmbedBatchSplitsLargeInput", func(t *testing.T) {
		texts := make([]string, 150)
		for i := range texts {
			texts[i] = "passage"
		}
		vecs, err := c.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		assert.Len(t, vecs, 150)
		assert.Equal(t, float32(49), vecs[149][0])
	})

	t.Run("Generate", func(t *testing.T) {
		answer, err := c.Generate(ctx, "summarize")
		require.NoError(t, err)
		assert.Equal(t, "Parliament passed the budget.", answer)
	})

	require.NoError(t, c.Close())
	_, err := c.EmbedQuery(ctx, "again")
	assert.ErrorIs(t, err, gemini.ErrNotLoaded)
}

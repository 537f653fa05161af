package reranker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/adapter/reranker"
)

func hostedServer(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer "+wantKey, r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		// Results come back sorted by relevance, not by input order.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.2},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Score_Hosted(t *testing.T) {
	for _, provider := range []string{reranker.ProviderJina, reranker.ProviderCohere} {
		t.Run(provider, func(t *testing.T) {
			ts := hostedServer(t, "k1")

			client, err := reranker.NewClient(provider, "k1")
			require.NoError(t, err)
			client.SetBaseURL(ts.URL + "/v1/rerank")

			scores, err := client.Score(context.Background(), "q", []string{"d1", "d2"})
			assert.NoError(t, err)
			assert.Equal(t, []float64{0.2, 0.9}, scores)
		})
	}
}

func TestClient_Score_TEI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "q", body.Query)
		assert.Len(t, body.Texts, 3)
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"index": 2, "score": 0.7},
			{"index": 0, "score": 0.5},
			{"index": 1, "score": 0.1},
		})
	}))
	defer ts.Close()

	client, err := reranker.NewClient(reranker.ProviderTEI, "")
	require.NoError(t, err)
	client.SetBaseURL(ts.URL + "/rerank")

	scores, err := client.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.7}, scores)
}

func TestClient_Score_TEIRequiresURL(t *testing.T) {
	client, err := reranker.NewClient(reranker.ProviderTEI, "")
	require.NoError(t, err)

	_, err = client.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

func TestClient_Score_None(t *testing.T) {
	client, err := reranker.NewClient("none", "")
	require.NoError(t, err)

	scores, err := client.Score(context.Background(), "q", []string{"d1", "d2"})
	assert.NoError(t, err)
	assert.Equal(t, []float64{reranker.NeutralScore, reranker.NeutralScore}, scores)
}

func TestClient_Score_EmptyPassages(t *testing.T) {
	client, err := reranker.NewClient(reranker.ProviderJina, "k")
	require.NoError(t, err)

	scores, err := client.Score(context.Background(), "q", nil)
	assert.NoError(t, err)
	assert.Empty(t, scores)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := reranker.NewClient("bm25", "")
	assert.ErrorIs(t, err, reranker.ErrUnknownProvider)
}

func TestClient_Score_ErrorHandling(t *testing.T) {
	t.Run("StatusError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"invalid query"}`))
		}))
		defer ts.Close()

		client, _ := reranker.NewClient(reranker.ProviderJina, "k1")
		client.SetBaseURL(ts.URL)

		_, err := client.Score(context.Background(), "q", []string{"d1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "jina api error: 400")
		assert.Contains(t, err.Error(), `{"detail":"invalid query"}`)
	})

	t.Run("MissingScores", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"results": []map[string]interface{}{{"index": 0, "relevance_score": 0.9}},
			})
		}))
		defer ts.Close()

		client, _ := reranker.NewClient(reranker.ProviderCohere, "k1")
		client.SetBaseURL(ts.URL)

		_, err := client.Score(context.Background(), "q", []string{"d1", "d2"})
		assert.Error(t, err)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}))
		defer ts.Close()

		client, _ := reranker.NewClient(reranker.ProviderJina, "k1")
		client.SetBaseURL(ts.URL)

		_, err := client.Score(context.Background(), "q", []string{"d1"})
		assert.Error(t, err)
	})
}

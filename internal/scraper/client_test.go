package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khabar/internal/scraper"
)

func testClient(retries int) *scraper.Client {
	return scraper.NewClient(scraper.ClientConfig{
		Timeout:       2 * time.Second,
		Retries:       retries,
		UserAgent:     "khabar-test",
		RetryInterval: time.Millisecond,
	})
}

func TestClient_Get(t *testing.T) {
	t.Run("SendsUserAgent", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "khabar-test", r.Header.Get("User-Agent"))
			w.Write([]byte("ok"))
		}))
		defer ts.Close()

		body, err := testClient(3).Get(context.Background(), ts.URL)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte("finally"))
		}))
		defer ts.Close()

		body, err := testClient(3).Get(context.Background(), ts.URL)
		require.NoError(t, err)
		assert.Equal(t, "finally", string(body))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUpAfterRetries", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		_, err := testClient(3).Get(context.Background(), ts.URL)
		var he *scraper.HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("NotFoundIsPermanent", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		_, err := testClient(3).Get(context.Background(), ts.URL)
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("TooManyRequestsIsRetried", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte("ok"))
		}))
		defer ts.Close()

		_, err := testClient(3).Get(context.Background(), ts.URL)
		assert.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := testClient(3).Get(ctx, ts.URL)
		assert.Error(t, err)
	})
}

// Package scraper fetches news pages, feeds and sitemaps politely and turns
// them into validated articles.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// maxBody bounds how much of a response is read.
const maxBody = 10 << 20

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

type ClientConfig struct {
	Timeout   time.Duration
	Retries   int
	Delay     time.Duration
	UserAgent string
	// RetryInterval is the first backoff wait; it doubles per attempt.
	RetryInterval time.Duration
}

// Client is an HTTP getter with a per-request timeout, a shared token
// bucket between requests and retry with exponential backoff.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	retries   int
	userAgent string
	interval  time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		retries:   cfg.Retries,
		userAgent: cfg.UserAgent,
		interval:  cfg.RetryInterval,
	}
}

// Get returns the response body of url. Client errors other than 429 are
// not retried.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.interval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retries-1)), ctx)

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, err := c.get(ctx, url)
		if err != nil {
			var he *HTTPError
			if asHTTPError(err, &he) && he.StatusCode < 500 && he.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			slog.DebugContext(ctx, "fetch attempt failed", "url", url, "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

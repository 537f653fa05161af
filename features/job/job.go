package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Job is a fetch that failed and can be replayed. Payload is the fetch task
// exactly as it gets republished.
type Job struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

var ErrInvalidFilter = errors.New("invalid job filter")

// Filter narrows a listing to one publisher host. An empty Host matches
// every job.
type Filter struct {
	Host  string
	Limit int
}

// ParseFilter reads the host and limit query parameters.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{Host: strings.ToLower(strings.TrimSpace(q.Get("host"))), Limit: DefaultListLimit}
	if strings.ContainsAny(f.Host, "/%_") {
		return f, fmt.Errorf("%w: host %q", ErrInvalidFilter, f.Host)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxListLimit {
			return f, fmt.Errorf("%w: limit must be in [1, %d]", ErrInvalidFilter, MaxListLimit)
		}
		f.Limit = n
	}
	return f, nil
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// urlPattern is the LIKE pattern matching article urls on Host.
func (f Filter) urlPattern() string {
	if f.Host == "" {
		return "%"
	}
	return "%://" + f.Host + "/%"
}

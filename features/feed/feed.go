package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"khabar/internal/scraper"
)

var (
	ErrInvalidFeed = errors.New("invalid feed")
	ErrDuplicate   = errors.New("feed already exists")
)

type Feed struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Enabled  bool   `json:"enabled"`
}

// Validate normalizes the feed and checks kind and url.
func (f *Feed) Validate() error {
	f.URL = strings.TrimSpace(f.URL)
	f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
	if f.Kind == "" {
		f.Kind = scraper.KindRSS
	}
	if f.Kind != scraper.KindRSS && f.Kind != scraper.KindSitemap {
		return fmt.Errorf("%w: kind must be %q or %q", ErrInvalidFeed, scraper.KindRSS, scraper.KindSitemap)
	}
	u, err := url.Parse(f.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url %q is not an absolute http(s) url", ErrInvalidFeed, f.URL)
	}
	if f.Name == "" {
		f.Name = scraper.HostOf(f.URL)
	}
	return nil
}

type Repository interface {
	// Create inserts f and reports false when the url is already known.
	Create(ctx context.Context, f *Feed) (bool, error)
	List(ctx context.Context) ([]Feed, error)
	ListEnabled(ctx context.Context, kind string) ([]Feed, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, f *Feed) error {
	if err := f.Validate(); err != nil {
		return err
	}
	created, err := s.repo.Create(ctx, f)
	if err != nil {
		return err
	}
	if !created {
		return ErrDuplicate
	}
	slog.InfoContext(ctx, "feed added", "id", f.ID, "kind", f.Kind, "url", f.URL)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Feed, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Feeds lists the enabled feeds of kind in the scraper's terms.
func (s *Service) Feeds(ctx context.Context, kind string) ([]scraper.Feed, error) {
	feeds, err := s.repo.ListEnabled(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s feeds: %w", kind, err)
	}
	out := make([]scraper.Feed, len(feeds))
	for i, f := range feeds {
		out[i] = scraper.Feed{URL: f.URL, Name: f.Name}
	}
	return out, nil
}

// Seed inserts every catalog entry that is not stored yet and returns how
// many were added. Invalid entries are logged and skipped.
func (s *Service) Seed(ctx context.Context, catalog []Feed) (int, error) {
	added := 0
	for i := range catalog {
		f := catalog[i]
		if err := f.Validate(); err != nil {
			slog.WarnContext(ctx, "skipping catalog entry", "url", f.URL, "error", err)
			continue
		}
		created, err := s.repo.Create(ctx, &f)
		if err != nil {
			return added, fmt.Errorf("seed feed %s: %w", f.URL, err)
		}
		if created {
			added++
		}
	}
	slog.InfoContext(ctx, "feed catalog seeded", "entries", len(catalog), "added", added)
	return added, nil
}

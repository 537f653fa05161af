// Package settings holds the retrieval defaults that can be tuned at runtime.
package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the retrieval tunables. Weights are independent and need not
// sum to one.
type Settings struct {
	TopK          int     `json:"top_k"`
	MaxAgeDays    int     `json:"max_age_days"`
	MinSimilarity float64 `json:"min_similarity"`
	SemWeight     float64 `json:"sem_weight"`
	FreshWeight   float64 `json:"fresh_weight"`
	DecayRate     float64 `json:"decay_rate"`
}

func (s Settings) Validate() error {
	if s.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidSettings)
	}
	if s.MaxAgeDays < 0 {
		return fmt.Errorf("%w: max_age_days must not be negative", ErrInvalidSettings)
	}
	if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be in [-1, 1]", ErrInvalidSettings)
	}
	if s.SemWeight < 0 || s.FreshWeight < 0 || s.DecayRate < 0 {
		return fmt.Errorf("%w: weights and decay_rate must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Patch changes only the fields that are set.
type Patch struct {
	TopK          *int     `json:"top_k,omitempty"`
	MaxAgeDays    *int     `json:"max_age_days,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	SemWeight     *float64 `json:"sem_weight,omitempty"`
	FreshWeight   *float64 `json:"fresh_weight,omitempty"`
	DecayRate     *float64 `json:"decay_rate,omitempty"`
}

func (s Settings) Apply(p Patch) Settings {
	if p.TopK != nil {
		s.TopK = *p.TopK
	}
	if p.MaxAgeDays != nil {
		s.MaxAgeDays = *p.MaxAgeDays
	}
	if p.MinSimilarity != nil {
		s.MinSimilarity = *p.MinSimilarity
	}
	if p.SemWeight != nil {
		s.SemWeight = *p.SemWeight
	}
	if p.FreshWeight != nil {
		s.FreshWeight = *p.FreshWeight
	}
	if p.DecayRate != nil {
		s.DecayRate = *p.DecayRate
	}
	return s
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
	Seed(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}

// Seed stores defaults unless a row already exists.
func (s *Service) Seed(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Seed(ctx, set)
}

// Patch applies p to the stored settings and returns the result.
func (s *Service) Patch(ctx context.Context, p Patch) (*Settings, error) {
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := cur.Apply(p)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT top_k, max_age_days, min_similarity, sem_weight, fresh_weight, decay_rate FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.TopK, &s.MaxAgeDays, &s.MinSimilarity, &s.SemWeight, &s.FreshWeight, &s.DecayRate)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, top_k, max_age_days, min_similarity, sem_weight, fresh_weight, decay_rate)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET top_k = EXCLUDED.top_k, max_age_days = EXCLUDED.max_age_days, min_similarity = EXCLUDED.min_similarity,
			sem_weight = EXCLUDED.sem_weight, fresh_weight = EXCLUDED.fresh_weight, decay_rate = EXCLUDED.decay_rate, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, s.TopK, s.MaxAgeDays, s.MinSimilarity, s.SemWeight, s.FreshWeight, s.DecayRate)
	return err
}

func (r *PostgresRepo) Seed(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, top_k, max_age_days, min_similarity, sem_weight, fresh_weight, decay_rate)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, s.TopK, s.MaxAgeDays, s.MinSimilarity, s.SemWeight, s.FreshWeight, s.DecayRate)
	return err
}

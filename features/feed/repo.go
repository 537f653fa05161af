package feed

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, f *Feed) (bool, error) {
	query := `INSERT INTO feeds (kind, url, name, language, enabled) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (url) DO NOTHING RETURNING id`
	err := r.db.QueryRowContext(ctx, query, f.Kind, f.URL, f.Name, f.Language, f.Enabled).Scan(&f.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Feed, error) {
	query := `SELECT id, kind, url, name, language, enabled FROM feeds ORDER BY kind, name`
	return r.list(ctx, query)
}

func (r *PostgresRepo) ListEnabled(ctx context.Context, kind string) ([]Feed, error) {
	query := `SELECT id, kind, url, name, language, enabled FROM feeds WHERE kind = $1 AND enabled ORDER BY name`
	return r.list(ctx, query, kind)
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.Kind, &f.URL, &f.Name, &f.Language, &f.Enabled); err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM feeds WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

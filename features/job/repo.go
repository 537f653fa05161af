package job

import (
	"context"
	"database/sql"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, f Filter) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, url, handler, payload, error, retries, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (Job, error) {
	var j Job
	var payload []byte
	if err := s.Scan(&j.ID, &j.URL, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return j, err
	}
	j.Payload = payload
	return j, nil
}

func (r *PostgresRepo) Save(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO failed_jobs (url, handler, payload, error, retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query, j.URL, j.Handler, []byte(j.Payload), j.Error, j.Retries).Scan(&j.ID, &j.CreatedAt)
}

// List returns the newest jobs first.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM failed_jobs WHERE url LIKE $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, f.urlPattern(), f.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM failed_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Delete reports sql.ErrNoRows when no job has id.
func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&n)
	return n, err
}

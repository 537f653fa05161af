package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khabar/internal/news"

	"github.com/lib/pq"
)

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// PostgresRepo holds chunk text and metadata. Rows are never updated or
// deleted.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// MaxChunkID returns the largest stored chunk id. ok is false for an empty
// table.
func (r *PostgresRepo) MaxChunkID(ctx context.Context) (id uint64, ok bool, err error) {
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(chunk_id) FROM chunks").Scan(&last); err != nil {
		return 0, false, err
	}
	if !last.Valid {
		return 0, false, nil
	}
	return uint64(last.Int64), true, nil
}

func (r *PostgresRepo) SeenURLs(ctx context.Context) (news.URLSet, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT url FROM chunks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := news.NewURLSet()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		seen.Add(u)
	}
	return seen, rows.Err()
}

func (r *PostgresRepo) ContainsURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM chunks WHERE url = $1)", url).Scan(&exists)
	return exists, err
}

const insertChunkQuery = `INSERT INTO chunks (chunk_id, text, title, url, date, source, chunk_index, token_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING
RETURNING chunk_id`

// InsertChunks inserts chunks, ignoring any that conflict with a stored
// chunk id or (url, chunk_index), and returns the ids actually inserted.
func (r *PostgresRepo) InsertChunks(ctx context.Context, q execQuerier, chunks []news.Chunk) ([]uint64, error) {
	stmt, err := q.PrepareContext(ctx, insertChunkQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]uint64, 0, len(chunks))
	for _, c := range chunks {
		var id int64
		err := stmt.QueryRowContext(ctx,
			int64(c.ChunkID), c.Text, c.Title, c.URL, c.Date, c.Source,
			int32(c.ChunkIndex), int32(c.TokenCount),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", c.ChunkID, err)
		}
		inserted = append(inserted, uint64(id))
	}
	return inserted, nil
}

// GetChunks loads the chunks with the given ids. Ids without a row are
// absent from the result.
func (r *PostgresRepo) GetChunks(ctx context.Context, ids []uint64) (map[uint64]news.Chunk, error) {
	out := make(map[uint64]news.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	query := `SELECT chunk_id, text, title, url, date, source, chunk_index, token_count
		FROM chunks WHERE chunk_id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c news.Chunk
		var id int64
		var idx, tokens int32
		if err := rows.Scan(&id, &c.Text, &c.Title, &c.URL, &c.Date, &c.Source, &idx, &tokens); err != nil {
			return nil, err
		}
		c.ChunkID = uint64(id)
		c.ChunkIndex = uint32(idx)
		c.TokenCount = uint32(tokens)
		out[c.ChunkID] = c
	}
	return out, rows.Err()
}

// SourceCount is the number of distinct articles stored for one source.
type SourceCount struct {
	Source   string `json:"source"`
	Articles int64  `json:"articles"`
}

type MetadataReport struct {
	TotalChunks   int64         `json:"total_chunks"`
	TotalArticles int64         `json:"total_articles"`
	TotalSources  int64         `json:"total_sources"`
	EarliestDate  string        `json:"earliest_date"`
	LatestDate    string        `json:"latest_date"`
	TopSources    []SourceCount `json:"top_sources"`
	SizeBytes     int64         `json:"size_bytes"`
}

// topSourcesLimit bounds the per-source breakdown in reports.
const topSourcesLimit = 15

func (r *PostgresRepo) Report(ctx context.Context) (MetadataReport, error) {
	var rep MetadataReport

	totals := `SELECT COUNT(*), COUNT(DISTINCT url), COUNT(DISTINCT source),
		COALESCE(MIN(date) FILTER (WHERE date ~ '^\d{4}-\d{2}-\d{2}$'), ''),
		COALESCE(MAX(date) FILTER (WHERE date ~ '^\d{4}-\d{2}-\d{2}$'), '')
		FROM chunks`
	err := r.db.QueryRowContext(ctx, totals).Scan(
		&rep.TotalChunks, &rep.TotalArticles, &rep.TotalSources, &rep.EarliestDate, &rep.LatestDate)
	if err != nil {
		return rep, fmt.Errorf("totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(DISTINCT url) AS articles
		FROM chunks GROUP BY source ORDER BY articles DESC, source LIMIT $1`, topSourcesLimit)
	if err != nil {
		return rep, fmt.Errorf("sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Articles); err != nil {
			return rep, err
		}
		rep.TopSources = append(rep.TopSources, sc)
	}
	if err := rows.Err(); err != nil {
		return rep, err
	}

	if err := r.db.QueryRowContext(ctx, "SELECT pg_total_relation_size('chunks')").Scan(&rep.SizeBytes); err != nil {
		return rep, fmt.Errorf("table size: %w", err)
	}
	return rep, nil
}

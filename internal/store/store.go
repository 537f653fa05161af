// Package store keeps chunk metadata in Postgres and chunk vectors in a
// vector.Index, and keeps the two consistent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"khabar/internal/news"
	"khabar/internal/vector"
)

var ErrLengthMismatch = errors.New("chunks and vectors differ in length")

// Candidate is a stored chunk returned by a similarity search.
type Candidate struct {
	news.Chunk
	Similarity float64
}

// Store is the single writer over metadata and index. Every stored chunk
// has a vector under the same id. A vector without a row can only be left
// by a crash between index flush and commit; such ids are never reused and
// are skipped when resolving search hits.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	meta   *PostgresRepo
	index  vector.Index
	logger *slog.Logger
}

func New(db *sql.DB, index vector.Index, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, meta: NewPostgresRepo(db), index: index, logger: logger}
}

// NextChunkID returns one past the largest id known to either the metadata
// table or the index, or 0 for an empty store.
func (s *Store) NextChunkID(ctx context.Context) (uint64, error) {
	var next uint64
	last, ok, err := s.meta.MaxChunkID(ctx)
	if err != nil {
		return 0, fmt.Errorf("max chunk id: %w", err)
	}
	if ok {
		next = last + 1
	}

	st, err := s.index.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("index stats: %w", err)
	}
	if st.Vectors > 0 && st.MaxID+1 > next {
		next = st.MaxID + 1
	}
	return next, nil
}

// SeenURLs reads the current URL set. Callers reload it for every run and
// batch instead of caching it.
func (s *Store) SeenURLs(ctx context.Context) (news.URLSet, error) {
	return s.meta.SeenURLs(ctx)
}

func (s *Store) ContainsURL(ctx context.Context, url string) (bool, error) {
	return s.meta.ContainsURL(ctx, url)
}

type PersistResult struct {
	Rows    int `json:"rows"`
	Vectors int `json:"vectors"`
}

// Persist stores chunks and their vectors as one unit. Rows are inserted
// in a transaction, vectors for the inserted rows are added and the index
// flushed, and only then is the transaction committed. Any failure rolls
// back the rows and removes the added vectors. Chunks already stored are
// ignored, so persisting the same batch twice is a no-op.
func (s *Store) Persist(ctx context.Context, chunks []news.Chunk, vectors [][]float32) (PersistResult, error) {
	if len(chunks) != len(vectors) {
		return PersistResult{}, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return PersistResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PersistResult{}, fmt.Errorf("begin: %w", err)
	}

	inserted, err := s.meta.InsertChunks(ctx, tx, chunks)
	if err != nil {
		_ = tx.Rollback()
		return PersistResult{}, err
	}

	byID := make(map[uint64]int, len(chunks))
	for i, c := range chunks {
		byID[c.ChunkID] = i
	}
	ids := make([]uint64, 0, len(inserted))
	vecs := make([][]float32, 0, len(inserted))
	for _, id := range inserted {
		ids = append(ids, id)
		vecs = append(vecs, vectors[byID[id]])
	}

	added, err := s.index.Add(ctx, ids, vecs)
	if err != nil {
		_ = tx.Rollback()
		return PersistResult{}, fmt.Errorf("index add: %w", err)
	}

	if err := s.index.Flush(ctx); err != nil {
		s.undo(ctx, added)
		_ = tx.Rollback()
		return PersistResult{}, fmt.Errorf("index flush: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.undo(ctx, added)
		if ferr := s.index.Flush(ctx); ferr != nil {
			s.logger.ErrorContext(ctx, "failed to flush index after rollback", "error", ferr)
		}
		return PersistResult{}, fmt.Errorf("commit: %w", err)
	}

	s.logger.InfoContext(ctx, "chunks persisted", "rows", len(inserted), "vectors", len(added), "skipped", len(chunks)-len(inserted))
	return PersistResult{Rows: len(inserted), Vectors: len(added)}, nil
}

func (s *Store) undo(ctx context.Context, ids []uint64) {
	if err := s.index.Remove(ctx, ids); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove vectors after failed persist", "error", err, "count", len(ids))
	}
}

// Search returns up to k stored chunks most similar to query, best first.
// k is capped at the index size.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Candidate, error) {
	st, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	k = min(k, st.Vectors)
	if k <= 0 {
		return nil, nil
	}

	hits, err := s.index.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := s.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.ID]
		if !ok {
			s.logger.WarnContext(ctx, "vector without metadata row", "chunk_id", h.ID)
			continue
		}
		out = append(out, Candidate{Chunk: c, Similarity: float64(h.Score)})
	}
	return out, nil
}

type Report struct {
	MetadataReport
	IndexFlavor  string `json:"index_flavor"`
	IndexVectors int    `json:"index_vectors"`
	IndexDim     int    `json:"index_dim"`
	IndexBytes   int64  `json:"index_size_bytes"`
}

// StorageReport summarizes what is stored. It has no side effects.
func (s *Store) StorageReport(ctx context.Context) (Report, error) {
	meta, err := s.meta.Report(ctx)
	if err != nil {
		return Report{}, err
	}
	st, err := s.index.Stats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("index stats: %w", err)
	}
	return Report{
		MetadataReport: meta,
		IndexFlavor:    st.Flavor,
		IndexVectors:   st.Vectors,
		IndexDim:       st.Dim,
		IndexBytes:     st.SizeBytes,
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

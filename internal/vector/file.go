package vector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the index file inside the index directory.
const FileName = "news.idx"

const (
	FlavorAuto = "auto"
)

type Options struct {
	// Flavor is auto, flat or ivf. auto switches to ivf once the corpus
	// reaches ExactThreshold vectors.
	Flavor          string
	ExactThreshold  int
	NList           int
	NProbe          int
	TrainIterations int
}

// wantIVF reports whether n vectors should live in an ivf index. IVF needs
// at least NList vectors to train.
func (o Options) wantIVF(n int) bool {
	return o.prefersIVF(n) && o.NList > 0 && n >= o.NList
}

func (o Options) prefersIVF(n int) bool {
	switch o.Flavor {
	case FlavorIVF:
		return true
	case FlavorAuto:
		return n >= o.ExactThreshold
	default:
		return false
	}
}

// FileIndex is an in-memory index persisted to a single file. It is built
// lazily on the first Add, and a flat index that has grown past the IVF
// threshold is retrained when it is next opened.
type FileIndex struct {
	mu      sync.RWMutex
	flushMu sync.Mutex
	path    string
	opts    Options
	logger  *slog.Logger

	s       structure
	dim     int
	maxID   uint64
	gen     uint64
	flushed uint64
}

func OpenFile(ctx context.Context, dir string, opts Options, logger *slog.Logger) (*FileIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	f := &FileIndex{path: filepath.Join(dir, FileName), opts: opts, logger: logger}

	file, err := os.Open(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.InfoContext(ctx, "no index on disk, will build on first add", "path", f.path)
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	s, dim, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", f.path, err)
	}
	f.s, f.dim = s, dim
	if x, ok := s.(*ivf); ok && opts.NProbe > 0 {
		x.nprobe = max(1, min(opts.NProbe, len(x.centroids)))
	}
	f.s.each(func(id uint64, _ []float32) { f.maxID = max(f.maxID, id) })
	logger.InfoContext(ctx, "index loaded", "path", f.path, "flavor", s.flavor(), "vectors", s.len(), "dim", dim)

	if s.flavor() == FlavorFlat && opts.wantIVF(s.len()) {
		if err := f.upgrade(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// upgrade retrains a flat index as ivf and rewrites the file.
func (f *FileIndex) upgrade(ctx context.Context) error {
	ids := make([]uint64, 0, f.s.len())
	vecs := make([][]float32, 0, f.s.len())
	f.s.each(func(id uint64, v []float32) {
		ids = append(ids, id)
		vecs = append(vecs, v)
	})

	x, err := f.buildIVF(ctx, vecs)
	if err != nil {
		return fmt.Errorf("train ivf: %w", err)
	}
	for i, id := range ids {
		x.add(id, vecs[i])
	}
	f.s = x
	f.gen++
	f.logger.InfoContext(ctx, "index upgraded to ivf", "vectors", len(ids), "nlist", len(x.centroids), "nprobe", x.nprobe)
	return f.Flush(ctx)
}

func (f *FileIndex) buildIVF(ctx context.Context, vecs [][]float32) (*ivf, error) {
	iters := f.opts.TrainIterations
	if iters <= 0 {
		iters = 20
	}
	centroids, err := trainCentroids(ctx, vecs, f.opts.NList, iters)
	if err != nil {
		return nil, err
	}
	return newIVF(centroids, f.opts.NProbe), nil
}

func (f *FileIndex) Add(ctx context.Context, ids []uint64, vectors [][]float32) ([]uint64, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dim := f.dim
	newIDs := make([]uint64, 0, len(ids))
	newVecs := make([][]float32, 0, len(ids))
	batch := make(map[uint64]struct{}, len(ids))
	for i, id := range ids {
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: id %d has %d dims, index has %d", ErrDimensionMismatch, id, len(vectors[i]), dim)
		}
		if _, dup := batch[id]; dup || (f.s != nil && f.s.has(id)) {
			continue
		}
		batch[id] = struct{}{}
		newIDs = append(newIDs, id)
		newVecs = append(newVecs, Normalize(vectors[i]))
	}
	if len(newIDs) == 0 {
		return nil, nil
	}

	if f.s == nil {
		if f.opts.wantIVF(len(newVecs)) {
			x, err := f.buildIVF(ctx, newVecs)
			if err != nil {
				return nil, fmt.Errorf("train ivf: %w", err)
			}
			f.s = x
		} else {
			if f.opts.prefersIVF(len(newVecs)) {
				f.logger.InfoContext(ctx, "too few vectors to train ivf, using flat index", "vectors", len(newVecs), "nlist", f.opts.NList)
			}
			f.s = newFlat()
		}
		f.dim = dim
		f.logger.InfoContext(ctx, "index created", "flavor", f.s.flavor(), "dim", dim)
	}

	for i, id := range newIDs {
		f.s.add(id, newVecs[i])
		f.maxID = max(f.maxID, id)
	}
	f.gen++
	return newIDs, nil
}

func (f *FileIndex) Remove(ctx context.Context, ids []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.s == nil {
		return nil
	}
	recompute := false
	for _, id := range ids {
		if f.s.remove(id) && id == f.maxID {
			recompute = true
		}
	}
	if recompute {
		f.maxID = 0
		f.s.each(func(id uint64, _ []float32) { f.maxID = max(f.maxID, id) })
	}
	f.gen++
	return nil
}

// Flush writes the index with write-temp, fsync, rename so a crash never
// leaves a partially written file in place.
func (f *FileIndex) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.RLock()
	gen := f.gen
	if f.s == nil || gen == f.flushed {
		f.mu.RUnlock()
		return nil
	}
	err := writeAtomic(f.path, func(w io.Writer) error { return encode(w, f.s, f.dim) })
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("flush index: %w", err)
	}

	f.mu.Lock()
	f.flushed = gen
	f.mu.Unlock()
	return nil
}

func (f *FileIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.s == nil || k <= 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	return f.s.search(Normalize(query), min(k, f.s.len())), nil
}

func (f *FileIndex) Stats(ctx context.Context) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st := Stats{Flavor: FlavorFlat, Dim: f.dim, MaxID: f.maxID}
	if f.s != nil {
		st.Flavor = f.s.flavor()
		st.Vectors = f.s.len()
		if x, ok := f.s.(*ivf); ok {
			st.NList = len(x.centroids)
			st.NProbe = x.nprobe
		}
	}
	info, err := os.Stat(f.path)
	switch {
	case err == nil:
		st.SizeBytes = info.Size()
	case !errors.Is(err, os.ErrNotExist):
		return st, err
	}
	return st, nil
}

func (f *FileIndex) Close() error {
	return f.Flush(context.Background())
}

// Path is the index file location.
func (f *FileIndex) Path() string {
	return f.path
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Package vector provides the similarity index that holds one embedding per
// stored chunk, addressed by chunk id.
package vector

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrCorruptIndex is fatal: the on-disk index cannot be trusted and the
	// session must stop rather than serve or extend it.
	ErrCorruptIndex      = errors.New("corrupt vector index")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrLengthMismatch    = errors.New("ids and vectors differ in length")
)

const (
	FlavorFlat     = "flat"
	FlavorIVF      = "ivf"
	FlavorWeaviate = "weaviate"
)

// Hit is one search result. Score is the cosine similarity between the
// query and the stored vector.
type Hit struct {
	ID    uint64
	Score float32
}

type Stats struct {
	Flavor    string
	Vectors   int
	Dim       int
	NList     int
	NProbe    int
	MaxID     uint64 // meaningful only when Vectors > 0
	SizeBytes int64
}

// Index is an append-only similarity index keyed by chunk id. Remove exists
// only to undo an Add whose surrounding persist failed.
type Index interface {
	// Add stores vectors under ids and returns the ids that were actually
	// added. Ids already present are skipped.
	Add(ctx context.Context, ids []uint64, vectors [][]float32) ([]uint64, error)
	Remove(ctx context.Context, ids []uint64) error
	// Flush makes every Add so far durable.
	Flush(ctx context.Context) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Normalize returns v scaled to unit length. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

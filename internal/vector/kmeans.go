package vector

import (
	"context"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// trainSeed keeps training reproducible for a given set of vectors.
const trainSeed = 0x6b686162

// pointsPerCentroid caps the k-means training sample.
const pointsPerCentroid = 64

// trainCentroids fits nlist unit-length centroids to vectors with
// spherical k-means. vectors must be normalized and len(vectors) >= nlist.
func trainCentroids(ctx context.Context, vectors [][]float32, nlist, iterations int) ([][]float32, error) {
	rng := rand.New(rand.NewPCG(trainSeed, uint64(len(vectors))))

	sample := vectors
	if limit := nlist * pointsPerCentroid; len(vectors) > limit {
		sample = make([][]float32, limit)
		for i, p := range rng.Perm(len(vectors))[:limit] {
			sample[i] = vectors[p]
		}
	}

	dim := len(sample[0])
	centroids := make([][]float32, nlist)
	for i, p := range rng.Perm(len(sample))[:nlist] {
		centroids[i] = append([]float32(nil), sample[p]...)
	}

	assign := make([]int, len(sample))
	for iter := 0; iter < iterations; iter++ {
		if err := assignAll(ctx, centroids, sample, assign); err != nil {
			return nil, err
		}

		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for i, c := range assign {
			if sums[c] == nil {
				sums[c] = make([]float64, dim)
			}
			for j, x := range sample[i] {
				sums[c][j] += float64(x)
			}
			counts[c]++
		}

		for c := range centroids {
			if counts[c] == 0 {
				// empty cluster: restart it on a random training point
				centroids[c] = append([]float32(nil), sample[rng.IntN(len(sample))]...)
				continue
			}
			next := make([]float32, dim)
			for j, s := range sums[c] {
				next[j] = float32(s / float64(counts[c]))
			}
			centroids[c] = Normalize(next)
		}
	}
	return centroids, nil
}

func assignAll(ctx context.Context, centroids, points [][]float32, assign []int) error {
	workers := runtime.GOMAXPROCS(0)
	span := (len(points) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(points); start += span {
		end := min(start+span, len(points))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				assign[i] = nearestCentroid(centroids, points[i])
			}
			return nil
		})
	}
	return g.Wait()
}

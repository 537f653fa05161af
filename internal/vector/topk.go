package vector

import (
	"container/heap"
	"sort"
)

// topK keeps the k best hits seen so far in a min-heap.
type topK struct {
	k    int
	hits hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, hits: make(hitHeap, 0, k)}
}

func (t *topK) push(h Hit) {
	if t.k <= 0 {
		return
	}
	if len(t.hits) < t.k {
		heap.Push(&t.hits, h)
		return
	}
	if worse(t.hits[0], h) {
		t.hits[0] = h
		heap.Fix(&t.hits, 0)
	}
}

// sorted returns the hits best first. Ties go to the lower id.
func (t *topK) sorted() []Hit {
	out := make([]Hit, len(t.hits))
	copy(out, t.hits)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}

// worse reports whether a ranks below b.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

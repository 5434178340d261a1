// Package rank selects the top-k most similar catalog rows for a batch of
// query vectors by inner-product score.
//
// Selection uses a bounded min-heap per query rather than a full sort, so
// the order of indices within each result set is unspecified. Callers that
// need a presentation order must sort the returned slice themselves. Query
// vectors must use the same normalisation convention as the index vectors —
// the ranker does not normalise.
package rank

import (
	"errors"
	"fmt"

	"github.com/partline/partline/internal/catalog"
)

// ErrEmptyQuery is returned when TopK receives no query vectors.
var ErrEmptyQuery = errors.New("rank: no query vectors")

// TopK returns, for each query vector, the indices of the up-to-k
// highest-scoring catalog rows. k is clamped to the catalog size.
func TopK(index *catalog.Index, queries [][]float32, k int) ([][]int, error) {
	if len(queries) == 0 {
		return nil, ErrEmptyQuery
	}
	if k < 1 {
		return nil, fmt.Errorf("rank: k must be positive, got %d", k)
	}
	if n := index.Len(); k > n {
		k = n
	}

	dims := index.Dimensions()
	vectors := index.Vectors()

	results := make([][]int, len(queries))
	for qi, q := range queries {
		if len(q) != dims {
			return nil, fmt.Errorf("rank: query %d has %d dims, index has %d", qi, len(q), dims)
		}

		h := newTopHeap(k)
		for ri, v := range vectors {
			h.offer(ri, dot(v, q))
		}
		results[qi] = h.indices()
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// topHeap is a bounded min-heap over (row index, score) pairs. Once full,
// an offered entry replaces the root only when it scores strictly higher,
// so ties at the boundary are broken arbitrarily by arrival order.
type topHeap struct {
	idx   []int
	score []float64
	cap   int
}

func newTopHeap(k int) *topHeap {
	return &topHeap{
		idx:   make([]int, 0, k),
		score: make([]float64, 0, k),
		cap:   k,
	}
}

func (h *topHeap) offer(index int, score float64) {
	if len(h.idx) < h.cap {
		h.idx = append(h.idx, index)
		h.score = append(h.score, score)
		h.siftUp(len(h.idx) - 1)
		return
	}
	if score <= h.score[0] {
		return
	}
	h.idx[0], h.score[0] = index, score
	h.siftDown(0)
}

func (h *topHeap) indices() []int {
	out := make([]int, len(h.idx))
	copy(out, h.idx)
	return out
}

func (h *topHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.score[parent] <= h.score[i] {
			return
		}
		h.swap(parent, i)
		i = parent
	}
}

func (h *topHeap) siftDown(i int) {
	n := len(h.idx)
	for {
		smallest := i
		for _, child := range []int{2*i + 1, 2*i + 2} {
			if child < n && h.score[child] < h.score[smallest] {
				smallest = child
			}
		}
		if smallest == i {
			return
		}
		h.swap(smallest, i)
		i = smallest
	}
}

func (h *topHeap) swap(a, b int) {
	h.idx[a], h.idx[b] = h.idx[b], h.idx[a]
	h.score[a], h.score[b] = h.score[b], h.score[a]
}

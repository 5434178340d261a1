// Package crosssell suggests companion catalog rows for a matched part.
//
// The current strategy samples uniformly at random from the whole catalog,
// excluding the matched row itself. A purchase-history model can slot in
// behind the same Sampler surface later.
package crosssell

import (
	"math/rand/v2"
	"sync"

	"github.com/partline/partline/internal/catalog"
)

// Sampler draws cross-sell suggestions from a catalog index.
type Sampler struct {
	index *catalog.Index

	mu  sync.Mutex
	rng *rand.Rand
}

// Option is a functional option for Sampler.
type Option func(*Sampler)

// WithSource sets a deterministic random source. Used in tests.
func WithSource(src rand.Source) Option {
	return func(s *Sampler) { s.rng = rand.New(src) }
}

// New creates a Sampler over the given index.
func New(index *catalog.Index, opts ...Option) *Sampler {
	s := &Sampler{
		index: index,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sample returns between nmin and nmax distinct rows, none of which is the
// row at matched. The count is drawn uniformly from [nmin, nmax] and clamped
// to the number of eligible rows; with one or zero catalog rows the result
// is empty.
func (s *Sampler) Sample(matched, nmin, nmax int) []catalog.Row {
	eligible := s.index.Len() - 1
	if eligible < 1 || nmax < 1 {
		return nil
	}
	if nmin < 1 {
		nmin = 1
	}
	if nmax < nmin {
		nmax = nmin
	}

	s.mu.Lock()
	n := nmin + s.rng.IntN(nmax-nmin+1)
	if n > eligible {
		n = eligible
	}

	// Sample without replacement via a partial Fisher-Yates over row
	// indices, skipping the matched row.
	pool := make([]int, 0, eligible)
	for i := range s.index.Len() {
		if i != matched {
			pool = append(pool, i)
		}
	}
	for i := range n {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	s.mu.Unlock()

	out := make([]catalog.Row, 0, n)
	for _, idx := range pool[:n] {
		out = append(out, s.index.Row(idx))
	}
	return out
}

package rank_test

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"

	"github.com/partline/partline/internal/catalog"
	"github.com/partline/partline/internal/rank"
)

// buildIndex makes a catalog of n rows with the given vectors.
func buildIndex(t *testing.T, vectors [][]float32) *catalog.Index {
	t.Helper()
	rows := make([]catalog.Row, len(vectors))
	for i := range rows {
		rows[i] = catalog.Row{ItemID: fmt.Sprintf("item-%d", i)}
	}
	ix, err := catalog.New(rows, vectors)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return ix
}

func TestTopK_MatchesFullSort(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(42, 0))

	const (
		n    = 200
		dims = 8
		k    = 10
	)
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dims)
		for d := range v {
			v[d] = float32(rng.Float64()*2 - 1)
		}
		vectors[i] = v
	}
	ix := buildIndex(t, vectors)

	query := make([]float32, dims)
	for d := range query {
		query[d] = float32(rng.Float64()*2 - 1)
	}

	got, err := rank.TopK(ix, [][]float32{query}, k)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got) != 1 || len(got[0]) != k {
		t.Fatalf("result shape = %d x %d; want 1 x %d", len(got), len(got[0]), k)
	}

	// Reference: full sort by score.
	scores := make([]float64, n)
	for i, v := range vectors {
		var s float64
		for d := range v {
			s += float64(v[d]) * float64(query[d])
		}
		scores[i] = s
	}
	ref := make([]int, n)
	for i := range ref {
		ref[i] = i
	}
	sort.Slice(ref, func(a, b int) bool { return scores[ref[a]] > scores[ref[b]] })

	want := slices.Clone(ref[:k])
	gotSorted := slices.Clone(got[0])
	slices.Sort(want)
	slices.Sort(gotSorted)
	if !slices.Equal(gotSorted, want) {
		t.Errorf("top-k set = %v; want %v", gotSorted, want)
	}
}

func TestTopK_ClampsToCatalogSize(t *testing.T) {
	t.Parallel()
	ix := buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})

	got, err := rank.TopK(ix, [][]float32{{1, 0}}, 50)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got[0]) != 3 {
		t.Errorf("len = %d; want 3 (clamped)", len(got[0]))
	}
}

func TestTopK_AllIndicesValid(t *testing.T) {
	t.Parallel()
	ix := buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}, {-1, 0}})

	got, err := rank.TopK(ix, [][]float32{{0.3, 0.7}, {1, 0}}, 2)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	for qi, set := range got {
		if len(set) > 2 {
			t.Errorf("query %d: %d indices; want <= 2", qi, len(set))
		}
		seen := map[int]bool{}
		for _, idx := range set {
			if idx < 0 || idx >= ix.Len() {
				t.Errorf("query %d: index %d out of range", qi, idx)
			}
			if seen[idx] {
				t.Errorf("query %d: duplicate index %d", qi, idx)
			}
			seen[idx] = true
		}
	}
}

func TestTopK_EmptyQuery(t *testing.T) {
	t.Parallel()
	ix := buildIndex(t, [][]float32{{1, 0}})

	if _, err := rank.TopK(ix, nil, 5); !errors.Is(err, rank.ErrEmptyQuery) {
		t.Fatalf("err = %v; want ErrEmptyQuery", err)
	}
}

func TestTopK_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ix := buildIndex(t, [][]float32{{1, 0}})

	if _, err := rank.TopK(ix, [][]float32{{1, 0, 0}}, 1); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

// Package index implements an exact, brute-force L2 vector index whose
// positions line up with the corpus order.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrMissingIndex      = errors.New("index: artifacts not found")
	ErrCorruptIndex      = errors.New("index: artifacts cannot be parsed")
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
)

// Hit is a search result: the position of the stored vector and its squared
// Euclidean distance to the query.
type Hit struct {
	Position int
	Distance float32
}

// Flat stores vectors contiguously in insertion order. Add is not safe for
// concurrent use; once loaded the index is read-only and Search may be called
// from any number of goroutines.
type Flat struct {
	dim  int
	data []float32
	meta []Entry
}

// NewFlat creates an empty index for vectors of length dim.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: invalid dimension %d", dim)
	}
	return &Flat{dim: dim}, nil
}

func (f *Flat) Dimension() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.data) / f.dim }

// Entries returns the position-aligned metadata stored with the vectors.
func (f *Flat) Entries() []Entry { return f.meta }

// Add appends vectors. Either all vectors are added or none are.
func (f *Flat) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// AddWithEntries appends vectors together with their metadata entries.
func (f *Flat) AddWithEntries(vectors [][]float32, entries []Entry) error {
	if len(vectors) != len(entries) {
		return fmt.Errorf("index: %d vectors but %d entries", len(vectors), len(entries))
	}
	if len(f.meta) != f.Len() {
		return fmt.Errorf("index: metadata out of step with vectors (%d != %d)", len(f.meta), f.Len())
	}
	if err := f.Add(vectors); err != nil {
		return err
	}
	f.meta = append(f.meta, entries...)
	return nil
}

// Search returns up to k nearest vectors by squared L2 distance, closest
// first. Equal distances keep insertion order. An empty index yields no hits.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	n := f.Len()
	if n == 0 {
		return []Hit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, f.data[i*f.dim:(i+1)*f.dim])}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

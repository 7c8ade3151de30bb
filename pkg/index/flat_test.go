package index

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestSearchReturnsMinOfKAndN(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	query := randomVectors(r, 1, 8)[0]

	for _, n := range []int{0, 1, 2, 5, 17} {
		for _, k := range []int{1, 3, 5, 20} {
			f, err := NewFlat(8)
			require.NoError(t, err)
			require.NoError(t, f.Add(randomVectors(r, n, 8)))

			hits, err := f.Search(context.Background(), query, k)
			require.NoError(t, err)
			assert.Len(t, hits, min(k, n), "n=%d k=%d", n, k)
			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
			}
		}
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	f, err := NewFlat(4)
	require.NoError(t, err)

	hits, err := f.Search(context.Background(), []float32{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearchExactDistances(t *testing.T) {
	f, err := NewFlat(2)
	require.NoError(t, err)
	require.NoError(t, f.Add([][]float32{{0, 0}, {3, 4}, {1, 0}, {1, 0}}))

	hits, err := f.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []Hit{
		{Position: 0, Distance: 0},
		{Position: 2, Distance: 1},
		{Position: 3, Distance: 1},
	}, hits)
}

func TestAddRejectsWrongDimension(t *testing.T) {
	f, err := NewFlat(3)
	require.NoError(t, err)

	err = f.Add([][]float32{{1, 2, 3}, {1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, f.Len(), "a rejected batch must not be partially added")
}

func TestSearchValidatesInput(t *testing.T) {
	f, err := NewFlat(3)
	require.NoError(t, err)
	require.NoError(t, f.Add([][]float32{{1, 2, 3}}))

	_, err = f.Search(context.Background(), []float32{1, 2}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = f.Search(context.Background(), []float32{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestNewFlatInvalidDimension(t *testing.T) {
	_, err := NewFlat(0)
	assert.Error(t, err)
}

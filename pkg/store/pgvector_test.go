package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/printdesk/pkg/index"
)

func getTestStore(t *testing.T, dim int) *VectorStore {
	t.Helper()
	url := os.Getenv("PGVECTOR_TEST_URL")
	if url == "" {
		t.Skip("PGVECTOR_TEST_URL not set")
	}
	s, err := NewWithConfig(context.Background(), VectorStoreConfig{
		ConnString: url,
		TableName:  "test_chunk_embeddings",
		Dimension:  dim,
		BatchSize:  2,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testEntries(ids ...string) []index.Entry {
	entries := make([]index.Entry, len(ids))
	for i, id := range ids {
		entries[i] = index.Entry{Text: "text " + id, Meta: index.Metadata{ID: id, SourceURL: "https://wiki.example/" + id}}
	}
	return entries
}

func TestVectorStoreMatchesFlatIndex(t *testing.T) {
	ctx := context.Background()
	s := getTestStore(t, 2)

	vectors := [][]float32{{0, 0}, {3, 4}, {1, 1}}
	require.NoError(t, s.Publish(ctx, vectors, testEntries("a", "b", "c")))

	flat, err := index.NewFlat(2)
	require.NoError(t, err)
	require.NoError(t, flat.Add(vectors))

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "b", s.Entries()[1].Meta.ID)

	query := []float32{0.5, 0.5}
	want, err := flat.Search(ctx, query, 3)
	require.NoError(t, err)
	got, err := s.Search(ctx, query, 3)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Position, got[i].Position)
		assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-4)
	}
}

func TestVectorStorePublishReplaces(t *testing.T) {
	ctx := context.Background()
	s := getTestStore(t, 2)

	require.NoError(t, s.Publish(ctx, [][]float32{{0, 0}, {1, 1}, {2, 2}}, testEntries("a", "b", "c")))
	require.NoError(t, s.Publish(ctx, [][]float32{{5, 5}}, testEntries("z")))

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "z", s.Entries()[0].Meta.ID)
}

func TestVectorStoreRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := getTestStore(t, 2)

	err := s.Publish(ctx, [][]float32{{1, 2, 3}}, testEntries("a"))
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	err = s.Publish(ctx, [][]float32{{1, 2}}, nil)
	assert.Error(t, err)

	_, err = s.Search(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	_, err = s.Search(ctx, []float32{1, 2}, 0)
	assert.Error(t, err)
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Сопло", "Сопло"},
		{"bad\xffbyte", "badbyte"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeUTF8(tt.in))
	}
}

func TestNewWithConfigRejectsDimension(t *testing.T) {
	_, err := NewWithConfig(context.Background(), VectorStoreConfig{ConnString: "postgres://localhost/none"})
	assert.Error(t, err)
}

package index

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/internal/types"
)

type BuildOptions struct {
	BatchSize int
	Workers   int
	// OnBatch is called with the size of every embedded batch. It may be
	// called from several goroutines.
	OnBatch func(n int)
}

// EntryFor is the metadata stored for a chunk.
func EntryFor(c models.Chunk) Entry {
	return Entry{
		Text: c.Text,
		Meta: Metadata{ID: c.ID, Title: c.Title, SourceURL: c.SourceURL, Category: c.Category},
	}
}

// Build embeds chunks in batches, several batches at a time, and returns a
// flat index whose positions follow chunk order. The vectors are returned
// too so they can be mirrored elsewhere.
func Build(ctx context.Context, chunks []models.Chunk, embedder types.Embedder, opts BuildOptions) (*Flat, [][]float32, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	flat, err := NewFlat(embedder.Dimension())
	if err != nil {
		return nil, nil, err
	}

	vectors := make([][]float32, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for start := 0; start < len(chunks); start += opts.BatchSize {
		start, end := start, min(start+opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Text
			}
			embedded, err := embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
			}
			if len(embedded) != len(texts) {
				return fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end-1, len(embedded))
			}
			// each batch owns a disjoint range
			copy(vectors[start:end], embedded)
			if opts.OnBatch != nil {
				opts.OnBatch(len(texts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = EntryFor(c)
	}
	if err := flat.AddWithEntries(vectors, entries); err != nil {
		return nil, nil, err
	}
	return flat, vectors, nil
}

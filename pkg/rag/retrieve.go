package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/internal/types"
	"github.com/xhad/printdesk/pkg/index"
	"github.com/xhad/printdesk/pkg/lexical"
)

// VectorSearcher is a read-only vector index whose positions line up with
// the corpus. Both the flat index and the pgvector store satisfy it.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.Hit, error)
	Len() int
	Dimension() int
}

// entryLister is implemented by searchers that carry per-position metadata,
// used to verify the corpus order at startup.
type entryLister interface {
	Entries() []index.Entry
}

// Path names the retrieval strategy that produced a result.
type Path string

const (
	PathVector  Path = "vector"
	PathLexical Path = "lexical"
)

// Degrade reasons. They are logged and counted, never returned to callers.
const (
	ReasonIndexUnavailable  = "index_unavailable"
	ReasonCountMismatch     = "count_mismatch"
	ReasonOrderMismatch     = "order_mismatch"
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonNoEmbedder        = "no_embedder"
	ReasonEmbedFailed       = "embed_failed"
	ReasonSearchFailed      = "search_failed"
	ReasonNoContext         = "no_context"
	ReasonBackendTimeout    = "backend_timeout"
	ReasonBackendDown       = "backend_unavailable"
	ReasonBackendMalformed  = "backend_malformed"
	ReasonBackendBusy       = "backend_busy"
)

// Retrieval is the outcome of the retrieve stage. Degraded is empty when the
// vector path served the query.
type Retrieval struct {
	Hits     []models.Hit
	Path     Path
	Degraded string
}

// checkIndex reports why the vector path cannot be trusted for this session,
// or "" when it can.
func checkIndex(searcher VectorSearcher, embedder types.Embedder, corpus []models.Chunk) (string, error) {
	if searcher == nil {
		return ReasonIndexUnavailable, nil
	}
	if embedder == nil {
		return ReasonNoEmbedder, nil
	}
	if searcher.Len() != len(corpus) {
		return ReasonCountMismatch, fmt.Errorf("index holds %d vectors, corpus has %d chunks", searcher.Len(), len(corpus))
	}
	if searcher.Dimension() != embedder.Dimension() {
		return ReasonDimensionMismatch, fmt.Errorf("index dimension %d, embedder dimension %d", searcher.Dimension(), embedder.Dimension())
	}
	if lister, ok := searcher.(entryLister); ok {
		for i, e := range lister.Entries() {
			if e.Meta.ID != corpus[i].ID {
				return ReasonOrderMismatch, fmt.Errorf("position %d: index has %q, corpus has %q", i, e.Meta.ID, corpus[i].ID)
			}
		}
	}
	return "", nil
}

func (p *Pipeline) retrieve(ctx context.Context, logger *zap.Logger, question string, topK int) Retrieval {
	if p.vectorDisabled != "" {
		return p.lexical(question, topK, p.vectorDisabled)
	}

	vectors, err := p.embedder.Embed(ctx, []string{question})
	if err != nil || len(vectors) != 1 {
		logger.Warn("query embedding failed, using lexical ranking", zap.Error(err))
		return p.lexical(question, topK, ReasonEmbedFailed)
	}

	hits, err := p.searcher.Search(ctx, vectors[0], topK)
	if err != nil {
		logger.Warn("vector search failed, using lexical ranking", zap.Error(err))
		return p.lexical(question, topK, ReasonSearchFailed)
	}

	out := make([]models.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(p.corpus) {
			logger.Warn("vector search returned an unknown position", zap.Int("position", h.Position))
			return p.lexical(question, topK, ReasonSearchFailed)
		}
		out = append(out, models.Hit{Chunk: p.corpus[h.Position], Distance: h.Distance})
	}
	return Retrieval{Hits: out, Path: PathVector}
}

func (p *Pipeline) lexical(question string, topK int, reason string) Retrieval {
	chunks := lexical.Rank(question, p.corpus, topK)
	hits := make([]models.Hit, len(chunks))
	for i, c := range chunks {
		hits[i] = models.Hit{Chunk: c}
	}
	return Retrieval{Hits: hits, Path: PathLexical, Degraded: reason}
}

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/config"
	"github.com/xhad/printdesk/pkg/corpus"
	"github.com/xhad/printdesk/pkg/index"
	"github.com/xhad/printdesk/pkg/llm"
	"github.com/xhad/printdesk/pkg/rag"
)

func writeConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")

	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf(`
embedding:
  provider: hash
  dimension: 32
corpus:
  path: %q
index:
  dir: %q
`, filepath.Join(dir, "chunks.jsonl"), filepath.Join(dir, "index"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func testChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "a#0", Title: "Сопло", Text: "Если сопло забилось, прогрейте его.", SourceURL: "https://wiki.example/nozzle"},
		{ID: "b#0", Title: "Стол", Text: "Стол выравнивают листом бумаги.", SourceURL: "https://wiki.example/bed"},
	}
}

func TestNewWithIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	chunks := testChunks()
	require.NoError(t, corpus.Write(cfg.Corpus.Path, chunks))

	flat, _, err := index.Build(context.Background(), chunks, llm.NewHashEmbedder(32), index.BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, flat.Save(cfg.Index.Dir))

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Pipeline.VectorSearch())
	assert.Equal(t, 2, a.Pipeline.CorpusSize())

	resp, err := a.Pipeline.Query(context.Background(), rag.Request{Question: "какая сегодня погода"})
	require.NoError(t, err)
	assert.Equal(t, rag.OutOfDomainAnswer, resp.Answer)
}

func TestNewWithoutIndexFallsBackToLexical(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	require.NoError(t, corpus.Write(cfg.Corpus.Path, testChunks()))

	core, logs := observer.New(zap.WarnLevel)
	a, err := New(context.Background(), cfg, zap.New(core))
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Pipeline.VectorSearch())
	assert.Equal(t, 1, logs.FilterMessage("vector index unusable").Len())
}

func TestNewRequiresCorpus(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(cfg.Corpus.Path, []byte("not json\n"), 0o644))
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, corpus.ErrEmptyCorpus)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: faiss\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.backend")
}

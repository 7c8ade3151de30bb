// Package app wires configuration into a ready query pipeline for the
// binaries under cmd/ and server/.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/types"
	"github.com/xhad/printdesk/pkg/classify"
	"github.com/xhad/printdesk/pkg/config"
	"github.com/xhad/printdesk/pkg/corpus"
	"github.com/xhad/printdesk/pkg/index"
	"github.com/xhad/printdesk/pkg/llm"
	"github.com/xhad/printdesk/pkg/logger"
	"github.com/xhad/printdesk/pkg/rag"
	"github.com/xhad/printdesk/pkg/store"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pipeline *rag.Pipeline
	Registry *prometheus.Registry

	closers []func()
}

// LoadConfig reads .env, the YAML config and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if verrs := cfg.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Bootstrap loads config, logger, corpus and index, and builds the
// pipeline. Only an unreadable config or an empty corpus is fatal; index
// problems leave the pipeline on lexical ranking.
func Bootstrap(ctx context.Context, configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, log)
}

// New builds the pipeline from an already loaded config.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Logger: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chunks, err := corpus.Load(cfg.Corpus.Path, log)
	if err != nil {
		log.Error("corpus could not be loaded", zap.String("path", cfg.Corpus.Path), zap.Error(err))
		return nil, err
	}
	log.Info("corpus loaded", zap.Int("chunks", len(chunks)))

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		log.Warn("embedder unavailable, vector search disabled", zap.Error(err))
		embedder = nil
	}

	completer, err := NewCompleter(cfg)
	if err != nil {
		log.Warn("generation backend unavailable, answers will use the fallback", zap.Error(err))
	}

	var classifier classify.Classifier = classify.NewKeyword()
	if cfg.LLM.Classifier == "llm" && completer != nil {
		classifier = classify.NewLLM(completer, log.Named("classify"))
	}

	var searcher rag.VectorSearcher
	if embedder != nil {
		searcher = a.openIndex(ctx, cfg, embedder.Dimension())
	}

	opts := rag.Options{
		Corpus:     chunks,
		Index:      searcher,
		Embedder:   embedder,
		Classifier: classifier,
		Settings: rag.Settings{
			DefaultTopK:       cfg.Retrieval.TopK,
			ContextChars:      cfg.Retrieval.ContextChars,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			GenerationTimeout: cfg.LLM.Timeout,
			MaxConcurrency:    cfg.LLM.MaxConcurrency,
		},
		Metrics: rag.NewMetrics(a.Registry),
		Logger:  log.Named("rag"),
	}
	if completer != nil {
		opts.Completer = completer
	}

	a.Pipeline, err = rag.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openIndex returns nil when the configured backend cannot serve.
func (a *App) openIndex(ctx context.Context, cfg *config.Config, dim int) rag.VectorSearcher {
	switch cfg.Index.Backend {
	case "pgvector":
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			Dimension:  dim,
			BatchSize:  cfg.Database.BatchSize,
		})
		if err != nil {
			a.Logger.Warn("pgvector store unavailable", zap.Error(err))
			return nil
		}
		if err := vs.Load(ctx); err != nil {
			a.Logger.Warn("pgvector index unusable", zap.Error(err))
			vs.Close()
			return nil
		}
		a.closers = append(a.closers, vs.Close)
		return vs
	default:
		flat, err := index.Load(cfg.Index.Dir, dim)
		if err != nil {
			a.Logger.Warn("vector index unusable", zap.String("dir", cfg.Index.Dir), zap.Error(err))
			return nil
		}
		return flat
	}
}

// NewEmbedder builds the configured embedding function.
func NewEmbedder(cfg *config.Config) (types.Embedder, error) {
	return llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
}

// NewCompleter builds the configured generation backend client.
func NewCompleter(cfg *config.Config) (*llm.ChatEngine, error) {
	return llm.NewWithConfig(llm.ChatConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout,
	})
}

func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
	_ = a.Logger.Sync()
}

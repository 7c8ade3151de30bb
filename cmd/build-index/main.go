package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/app"
	"github.com/xhad/printdesk/pkg/corpus"
	"github.com/xhad/printdesk/pkg/index"
	"github.com/xhad/printdesk/pkg/logger"
	"github.com/xhad/printdesk/pkg/store"
)

func main() {
	var (
		configPath string
		pgvector   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&pgvector, "pgvector", false, "Also publish the vectors to PostgreSQL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, configPath, pgvector); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configPath string, mirror bool) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	chunks, err := corpus.Load(cfg.Corpus.Path, log)
	if err != nil {
		return err
	}
	embedder, err := app.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	log.Info("building index",
		zap.Int("chunks", len(chunks)),
		zap.String("embedder", embedder.ModelInfo()),
		zap.Int("dimension", embedder.Dimension()))

	bar := app.NewProgressBar(len(chunks), "Embedding chunks...")
	flat, vectors, err := index.Build(ctx, chunks, embedder, index.BuildOptions{
		BatchSize: cfg.Embedding.BatchSize,
		Workers:   cfg.Embedding.Workers,
		OnBatch:   func(n int) { _ = bar.Add(n) },
	})
	_ = bar.Finish()
	if err != nil {
		// nothing was published; the previous index stays in place
		return fmt.Errorf("failed to build index: %w", err)
	}

	if err := flat.Save(cfg.Index.Dir); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	color.Green("\n✓ Indexed %d chunks into %s\n", flat.Len(), cfg.Index.Dir)

	if !mirror {
		return nil
	}

	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		Dimension:  flat.Dimension(),
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vs.Close()

	if err := vs.Publish(ctx, vectors, flat.Entries()); err != nil {
		return fmt.Errorf("failed to publish to pgvector: %w", err)
	}
	color.Green("✓ Mirrored %d vectors to %s\n", len(vectors), cfg.Database.TableName)
	return nil
}

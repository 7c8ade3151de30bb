package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/xhad/printdesk/internal/app"
	"github.com/xhad/printdesk/internal/models"
	"github.com/xhad/printdesk/pkg/corpus"
	"github.com/xhad/printdesk/pkg/logger"
	"github.com/xhad/printdesk/pkg/processor"
	"github.com/xhad/printdesk/pkg/scraper"
)

type options struct {
	configPath  string
	indexURL    string
	maxArticles int
	rawPath     string
	out         string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.indexURL, "index-url", "", "Wiki index page to collect articles from")
	flag.IntVar(&opts.maxArticles, "max", 0, "Maximum number of articles")
	flag.StringVar(&opts.rawPath, "raw", "", "Also save the scraped articles as JSON to this path")
	flag.StringVar(&opts.out, "out", "", "Corpus output path (defaults to corpus.path)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	if opts.indexURL == "" {
		opts.indexURL = cfg.Scraper.IndexURL
	}
	if opts.maxArticles == 0 {
		opts.maxArticles = cfg.Scraper.MaxArticles
	}
	if opts.out == "" {
		opts.out = cfg.Corpus.Path
	}

	color.Blue("\nCollecting articles from %s\n", opts.indexURL)
	bar := app.NewProgressBar(-1, "Scraping articles...")
	s := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxArticles:      opts.maxArticles,
		RateLimit:        cfg.Scraper.RateLimit,
		Timeout:          cfg.Scraper.Timeout,
		UserAgent:        cfg.Scraper.UserAgent,
		IgnorePatterns:   cfg.Scraper.IgnorePatterns,
		MinContentLength: cfg.Scraper.MinContentLength,
		OnProgress: func(done, total int, url string) {
			bar.ChangeMax(total)
			_ = bar.Set(done)
		},
	}, log.Named("scraper"))

	articles, err := s.Scrape(ctx, opts.indexURL)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to scrape articles: %w", err)
	}
	color.Green("\n✓ Scraped %d articles\n", len(articles))

	if opts.rawPath != "" {
		if err := writeRaw(opts.rawPath, articles); err != nil {
			return err
		}
	}

	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:        cfg.Processor.ChunkSize,
		ChunkOverlap:     cfg.Processor.ChunkOverlap,
		MinContentLength: cfg.Processor.MinContentLength,
	})
	chunks := p.Process(articles)
	if len(chunks) == 0 {
		return corpus.ErrEmptyCorpus
	}

	if err := corpus.Write(opts.out, chunks); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}
	color.Green("✓ Wrote %d chunks to %s\n", len(chunks), opts.out)
	return nil
}

func writeRaw(path string, articles []models.Article) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

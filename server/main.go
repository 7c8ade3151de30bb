package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/printdesk/internal/app"
)

func main() {
	var configPath, addr string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	if addr == "" {
		addr = a.Config.Server.Addr
	}

	s := NewServer(a.Pipeline, a.Registry, a.Logger, a.Config.Retrieval.EnableValidation, a.Config.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("shutdown", zap.Error(err))
		}
	}()

	a.Logger.Info("server listening", zap.String("addr", addr),
		zap.Int("corpus_size", a.Pipeline.CorpusSize()),
		zap.Bool("vector_search", a.Pipeline.VectorSearch()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Fatal("server failed", zap.Error(err))
	}
}

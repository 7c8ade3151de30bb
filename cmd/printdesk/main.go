package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"github.com/xhad/printdesk/internal/app"
	"github.com/xhad/printdesk/pkg/rag"
)

func main() {
	var (
		configPath string
		topK       int
		noValidate bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.IntVar(&topK, "top-k", 0, "Chunks to retrieve per question (0 uses the config value)")
	flag.BoolVar(&noValidate, "no-validate", false, "Skip the safety check on answers")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	if err := run(ctx, a, topK, !noValidate && a.Config.Retrieval.EnableValidation); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, a *app.App, topK int, validate bool) error {
	mode := "lexical"
	if a.Pipeline.VectorSearch() {
		mode = "vector"
	}
	color.Cyan("\n3D printing assistant: %d chunks, %s search (type 'exit' to quit)", a.Pipeline.CorpusSize(), mode)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	sourcePrompt := color.New(color.FgYellow).PrintfFunc()

	var dialog string
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.EqualFold(question, "exit") {
			break
		}

		spinner := app.NewSpinner("Thinking...")
		resp, err := a.Pipeline.Query(ctx, rag.Request{
			Question:         question,
			TopK:             topK,
			DialogContext:    dialog,
			EnableValidation: validate,
		})
		_ = spinner.Finish()
		fmt.Print("\r")
		if err != nil {
			return err
		}

		assistantPrompt("Assistant [%s]: %s\n", resp.Category, resp.Answer)
		for i, src := range resp.Sources {
			sourcePrompt("  %d. %s\n", i+1, src)
		}

		dialog = fmt.Sprintf("Пользователь: %s\nАссистент: %s", question, resp.Answer)
	}

	return scanner.Err()
}

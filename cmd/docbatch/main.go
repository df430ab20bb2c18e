package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/export"
	"github.com/obafela/doc-pipeline/internal/ingest"
	"github.com/obafela/doc-pipeline/internal/llm/openai"
	"github.com/obafela/doc-pipeline/internal/pipeline"
	"github.com/obafela/doc-pipeline/internal/preprocess"
	"github.com/obafela/doc-pipeline/internal/report"
	repo "github.com/obafela/doc-pipeline/internal/repository"
	"github.com/obafela/doc-pipeline/internal/retry"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// docbatch processes every supported file in a directory against a
// local SQLite database, then writes an XLSX job-history report.
func main() {
	var (
		dir    = flag.String("dir", "", "directory of documents to process (required)")
		dbPath = flag.String("db", "", "SQLite database path (default: <dir>/docpipeline.db)")
		out    = flag.String("out", "", "output XLSX path (default: next to --dir)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *dbPath == "" {
		*dbPath = filepath.Join(*dir, "docpipeline.db")
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "jobs.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()

	store, err := repo.NewSQLiteStore(*dbPath, logger)
	if err != nil {
		logger.Error("failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	client := openai.NewClient(openai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	pre := preprocess.New(preprocess.Config{
		Pdftoppm: cfg.Preprocess.Pdftoppm,
		DPI:      cfg.Preprocess.DPI,
		MaxPages: cfg.Preprocess.MaxPages,
	}, logger)

	reporter := report.NewLogger(store, cfg.Pipeline.ReportsDir, logger)

	processor := pipeline.NewProcessor(logger, pre, client, client, reporter, store, retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	})

	ingestor := ingest.NewFSIngestor(store, logger)
	results, stats, err := ingestor.IngestDirectory(ctx, *dir)
	if err != nil {
		logger.Error("failed to ingest directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion finished",
		"scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	processed, failed := 0, 0
	for _, r := range results {
		if r.Err != "" || r.Deduplicated {
			continue
		}
		_, err := processor.Process(ctx, pipeline.Document{
			ID:             r.DocumentID,
			Path:           r.SourcePath,
			Filename:       filepath.Base(r.SourcePath),
			DeclaredFormat: r.Format,
			SizeBytes:      r.SizeBytes,
		})
		if err != nil {
			failed++
			continue
		}
		processed++
	}
	logger.Info("batch finished", "processed", processed, "failed", failed)

	svc := export.NewService(store, store, store, logger)
	data, err := svc.ExportJobHistoryXLSX(ctx, 0)
	if err != nil {
		logger.Error("failed to export job history", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write XLSX", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("job history exported", "path", *out)
}

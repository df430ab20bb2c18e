package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/obafela/doc-pipeline/internal/common"
	"github.com/obafela/doc-pipeline/internal/ingest"
	"github.com/obafela/doc-pipeline/internal/llm/openai"
	"github.com/obafela/doc-pipeline/internal/pipeline"
	"github.com/obafela/doc-pipeline/internal/preprocess"
	"github.com/obafela/doc-pipeline/internal/report"
	repo "github.com/obafela/doc-pipeline/internal/repository"
	"github.com/obafela/doc-pipeline/internal/retry"
)

// docpiped is the long-running daemon: it watches one or more inbox
// directories and pushes every new supported file through the pipeline.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	inbox := os.Getenv("INBOX_DIR")
	if inbox == "" {
		logger.Error("missing INBOX_DIR environment variable")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(pool, logger)

	if err := repo.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	store := repo.NewPostgresStore(pool, logger)

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

	queue := pipeline.NewQueue(processor, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	ingestor := ingest.NewFSIngestor(store, logger)
	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{inbox},
		InitialScan: true,
		Debounce:    2 * time.Second,
	}, logger)
	if err != nil {
		logger.Error("failed to start inbox watcher", "inbox", inbox, "error", err)
		os.Exit(1)
	}

	logger.Info("docpiped watching inbox", "inbox", inbox, "workers", cfg.Pipeline.Workers)

	go func() {
		for err := range watchErrs {
			logger.Warn("inbox watcher error", "error", err)
		}
	}()

	for path := range events {
		res, err := ingestor.IngestPath(ctx, path)
		if err != nil {
			logger.Error("ingest failed", "path", path, "error", err)
			continue
		}
		if res.Deduplicated {
			continue
		}
		_ = queue.Enqueue(ctx, pipeline.Document{
			ID:             res.DocumentID,
			Path:           res.SourcePath,
			Filename:       filepath.Base(res.SourcePath),
			DeclaredFormat: res.Format,
			SizeBytes:      res.SizeBytes,
		})
	}

	<-ctx.Done()
	queue.Shutdown(context.Background())
}

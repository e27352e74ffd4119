package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/document"
	"github.com/okellar/invoiceflow/internal/extract"
	"github.com/okellar/invoiceflow/internal/fallback"
	"github.com/okellar/invoiceflow/internal/llm/openai"
	"github.com/okellar/invoiceflow/internal/match"
	"github.com/okellar/invoiceflow/internal/pipeline"
	"github.com/okellar/invoiceflow/internal/progress"
	"github.com/okellar/invoiceflow/internal/refdata"
	"github.com/okellar/invoiceflow/internal/repository"
	"github.com/okellar/invoiceflow/internal/review"
	"github.com/okellar/invoiceflow/internal/validate"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of invoice PDFs to process (required)")
		inmem   = flag.Bool("inmem", false, "use the in-memory store instead of a database")
		workers = flag.Int("workers", 0, "worker pool size (default from PIPELINE_WORKERS)")
		wsURL   = flag.String("ws", "", "websocket URL for progress events (default from PROGRESS_WS_URL)")
		refPath = flag.String("ref", "", "vendor reference dataset path (default from REFERENCE_DATA_PATH)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *wsURL != "" {
		cfg.Progress.WebsocketURL = *wsURL
	}
	if *refPath != "" {
		cfg.Reference.Path = *refPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	if *inmem || cfg.Database.DSN == "" {
		logger.Info("using in-memory store")
		store = repository.NewMemoryStore()
	} else {
		sqlStore, err := repository.Open(ctx, repository.Config{
			DSN:         cfg.Database.DSN,
			MaxConns:    cfg.Database.MaxConns,
			DialTimeout: cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to open result store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := sqlStore.Close(); err != nil {
				logger.Warn("store close failed", "error", err)
			}
		}()
		store = sqlStore
	}

	dataset, err := refdata.Load(cfg.Reference.Path, logger)
	if err != nil {
		logger.Error("failed to load reference dataset", "path", cfg.Reference.Path, "error", err)
		os.Exit(1)
	}
	logger.Info("reference dataset loaded", "path", cfg.Reference.Path, "vendors", dataset.Len())

	llmClient := openai.NewClient(openai.Config{
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
	}, logger)

	ocr := document.NewTesseractOCR(cfg.OCR.Language, cfg.OCR.TessdataDir)
	reader := document.NewReader(document.Config{MinTextDensity: cfg.OCR.MinTextDensity}, ocr, logger)

	extractStage := extract.NewStage(llmClient, logger)
	failureIndex := fallback.NewIndex(llmClient, logger)
	fallbackStage := fallback.NewStage(failureIndex, extractStage, cfg.Pipeline.SimilarityThreshold, logger)
	validateStage := validate.NewStage(store, store, validate.Config{
		OutlierStdDevs:   cfg.Pipeline.OutlierStdDevs,
		MinVendorSamples: cfg.Pipeline.MinVendorSamples,
	}, logger)
	matchStage := match.NewStage(dataset, cfg.Pipeline.MatchThreshold, logger)
	gate := review.NewGate(cfg.Pipeline.AutoAcceptThreshold, logger)

	orchestrator := pipeline.NewOrchestrator(
		reader, extractStage, fallbackStage, validateStage, matchStage, gate, store,
		pipeline.Config{
			RetryAttempts:  cfg.Pipeline.RetryAttempts,
			RetryBaseDelay: cfg.Pipeline.RetryBaseDelay,
			StageTimeout:   cfg.Pipeline.StageTimeout,
		}, logger)

	sink := buildSink(cfg, logger)
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("progress sink close failed", "error", err)
		}
	}()

	runner := pipeline.NewBatchRunner(orchestrator, sink, pipeline.BatchConfig{
		Workers:           cfg.Pipeline.Workers,
		HeartbeatInterval: cfg.Progress.HeartbeatInterval,
	}, logger)

	docs, err := collectDocuments(*dir)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		printError("No PDF documents found in %s\n", *dir)
		os.Exit(1)
	}

	result, err := runner.Run(ctx, docs)
	if err != nil {
		logger.Warn("batch interrupted", "error", err)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Total documents: %d\n", result.Total)
	fmt.Printf("- Auto-accepted:   %d\n", result.Valid)
	fmt.Printf("- Needs review:    %d\n", result.NeedsReview)
	fmt.Printf("- Failed:          %d\n", result.Failed)
	fmt.Printf("- Skipped:         %d\n", result.Skipped)
}

// buildSink wires the progress fan-out: always the log sink, plus the
// websocket sink when a URL is configured.
func buildSink(cfg *common.Config, logger *slog.Logger) progress.Sink {
	sinks := progress.MultiSink{progress.NewLogSink(logger)}
	if cfg.Progress.WebsocketURL != "" {
		sinks = append(sinks, progress.NewWebsocketSink(
			cfg.Progress.WebsocketURL,
			cfg.Progress.ReconnectMax,
			cfg.Progress.HeartbeatInterval,
			logger,
		))
	}
	return sinks
}

// collectDocuments reads every PDF under dir, sorted by name so batch runs
// are reproducible.
func collectDocuments(dir string) ([]pipeline.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var docs []pipeline.Document
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, pipeline.Document{Name: entry.Name(), Data: data, Ref: path})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

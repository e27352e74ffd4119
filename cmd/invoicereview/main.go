package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/repository"
	"github.com/okellar/invoiceflow/internal/review"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func usage() {
	printError(`Usage:
  invoicereview correct --invoice NUMBER --file corrections.json
  invoicereview anomalies
  invoicereview reviewed --id ANOMALY_ID
`)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	invoice := fs.String("invoice", "", "invoice number to correct")
	file := fs.String("file", "", "JSON file with corrected fields")
	anomalyID := fs.String("id", "", "anomaly ID to mark reviewed")
	if err := fs.Parse(os.Args[2:]); err != nil {
		usage()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		printError("Error: DB_URL must point at the invoice store\n")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, repository.Config{
		DSN:         cfg.Database.DSN,
		MaxConns:    cfg.Database.MaxConns,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		printError("Error: cannot open store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	svc := review.NewService(store, store, logger)

	switch command {
	case "correct":
		if *invoice == "" || *file == "" {
			usage()
		}
		runCorrect(ctx, svc, *invoice, *file)
	case "anomalies":
		runAnomalies(ctx, svc)
	case "reviewed":
		if *anomalyID == "" {
			usage()
		}
		runReviewed(ctx, svc, *anomalyID)
	default:
		usage()
	}
}

func runCorrect(ctx context.Context, svc *review.Service, invoiceNumber, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		printError("Error: cannot read corrections file: %v\n", err)
		os.Exit(1)
	}
	var corr review.Correction
	if err := json.Unmarshal(data, &corr); err != nil {
		printError("Error: corrections file is not valid JSON: %v\n", err)
		os.Exit(1)
	}

	rec, err := svc.ApplyCorrection(ctx, invoiceNumber, corr)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Invoice %s corrected: vendor=%s total=%s status=%s confidence=%.2f\n",
		rec.InvoiceNumber, rec.VendorName, rec.TotalAmount.StringFixed(2), rec.Status, rec.Confidence)
}

func runAnomalies(ctx context.Context, svc *review.Service) {
	anomalies, err := svc.PendingAnomalies(ctx)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(anomalies) == 0 {
		fmt.Println("No anomalies awaiting review.")
		return
	}
	for _, a := range anomalies {
		fmt.Printf("%s  %-18s  %-30s  %s\n", a.ID, a.Type, a.FileName, a.Reason)
	}
}

func runReviewed(ctx context.Context, svc *review.Service, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		printError("Error: invalid anomaly ID: %v\n", err)
		os.Exit(1)
	}
	if err := svc.MarkAnomalyReviewed(ctx, id); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Anomaly %s marked reviewed.\n", id)
}

package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/warehouse"
)

func main() {
	cfg := config.Load()

	// Initialize structured logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	project := flag.String("project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT env)")
	dataset := flag.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BIGQUERY_DATASET env)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall sync timeout")
	flag.Parse()

	if *project == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	// Create context with timeout so the job doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := app.OpenStore(ctx, cfg, false, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	writer, err := warehouse.NewBigQueryWriter(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery writer")
	}
	defer writer.Close()

	log.Info().Str("project", *project).Str("dataset", *dataset).Msg("Starting warehouse sync")

	if _, err := warehouse.NewSyncer(store, writer).Sync(ctx); err != nil {
		log.Fatal().Err(err).Msg("Warehouse sync failed")
	}
}

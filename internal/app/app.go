// Package app assembles the services shared by the binaries from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/budget"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/docai"
	"github.com/dvloznov/receipt-tracker/internal/export"
	"github.com/dvloznov/receipt-tracker/internal/gcs"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
	"github.com/dvloznov/receipt-tracker/internal/storage"
	"github.com/dvloznov/receipt-tracker/internal/storage/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/storage/postgres"
	"github.com/dvloznov/receipt-tracker/internal/transactions"
)

// Services bundles the long-lived collaborators of one process.
type Services struct {
	Store        storage.Store
	Images       *gcs.Storage
	Budgets      *budget.Service
	Exports      *export.Service
	Transactions *transactions.Service

	closers []func() error
}

// OpenStore connects to the configured store. The postgres schema is
// migrated up when migrate is set.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store - data is lost on exit")
		return inmemory.NewStore(), nil
	case config.StorePostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := store.Migrate(postgres.Up); err != nil {
				store.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("Database schema is up to date")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// New opens the store and object storage and builds the services on top.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	store, err := OpenStore(ctx, cfg, true, log)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Store:        store,
		Budgets:      budget.NewService(store),
		Exports:      export.NewService(store),
		Transactions: transactions.NewService(store),
		closers:      []func() error{store.Close},
	}

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - uploaded images will not be kept")
		return s, nil
	}
	images, err := gcs.NewStorage(ctx, cfg.GCSBucket, cfg.GCSEndpoint, cfg.MaxUploadBytes)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Images = images
	s.closers = append(s.closers, images.Close)
	return s, nil
}

// NewIngestor wires the ingestion pipeline to the Gemini analyzer.
func (s *Services) NewIngestor(ctx context.Context, cfg *config.Config) (*pipeline.Ingestor, error) {
	analyzer, err := docai.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OCRTimeout)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithFetcher(pipeline.NewHTTPFetcher(cfg.URLFetchTimeout, cfg.MaxUploadBytes)),
		pipeline.WithMaxBytes(cfg.MaxUploadBytes),
	}
	// A nil *gcs.Storage must not become a non-nil ObjectStore.
	if s.Images != nil {
		opts = append(opts, pipeline.WithObjectStore(s.Images))
	}
	return pipeline.NewIngestor(s.Store, analyzer, s.Budgets, opts...), nil
}

// Close releases everything New opened, in reverse order.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

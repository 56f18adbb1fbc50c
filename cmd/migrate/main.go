package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	databaseURL := flag.String("database-url", cfg.DatabaseURL, "Postgres connection URL (or set DATABASE_URL env)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate [options] up|down\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	dir, err := parseDirection(flag.Args())
	if err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := postgres.New(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Str("direction", string(dir)).Msg("Applying migrations")
	if err := store.Migrate(dir); err != nil {
		log.Fatal().Err(err).Str("direction", string(dir)).Msg("Migration failed")
	}
	log.Info().Str("direction", string(dir)).Msg("Migrations applied")
}

// parseDirection reads the single positional argument. No argument means up.
func parseDirection(args []string) (postgres.Direction, error) {
	if len(args) == 0 {
		return postgres.Up, nil
	}
	if len(args) > 1 {
		return "", fmt.Errorf("expected one argument, got %d", len(args))
	}
	switch d := postgres.Direction(args[0]); d {
	case postgres.Up, postgres.Down:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q: must be up or down", args[0])
	}
}

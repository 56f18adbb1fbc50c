package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/auth"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/export"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/pipeline"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "token":
		runToken(cfg, log)
	case "ingest":
		runIngest(cfg, log)
	case "recompute":
		runRecompute(cfg, log)
	case "reassign":
		runReassign(cfg, log)
	case "export":
		runExport(cfg, log)
	case "report":
		runReport(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  token      Issue an API bearer token for an owner")
	fmt.Println("  ingest     Analyze a receipt image and store it")
	fmt.Println("  recompute  Recompute the current spending of a budget")
	fmt.Println("  reassign   Re-run budget assignment for every receipt of an owner")
	fmt.Println("  export     Write receipts to an XLSX file")
	fmt.Println("  report     Print a budget report, or write it as PDF")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openServices connects to the configured store for one command.
func openServices(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app.Services {
	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return services
}

func printJSON(log zerolog.Logger, v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}

func requireOwner(log zerolog.Logger, owner int64) {
	if owner <= 0 {
		log.Fatal().Msg("Error: -owner is required")
	}
}

func runToken(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID the token is issued for")
	expiresIn := fs.Duration("expires-in", cfg.JWTExpiresIn, "Token lifetime")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, *expiresIn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token service (is JWT_SECRET set?)")
	}
	token, err := tokens.GenerateToken(*owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}

func runIngest(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID")
	filePath := fs.String("file", "", "Path to a local receipt image")
	imageURL := fs.String("url", "", "Remote http(s) image URL")
	imageRef := fs.String("ref", "", "gs:// URI of an image already in the bucket")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)

	req := pipeline.IngestRequest{OwnerID: *owner, ImageURL: *imageURL, ImageRef: *imageRef}
	if *filePath != "" {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read image")
		}
		req.Image = data
		req.Filename = filepath.Base(*filePath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	services := openServices(ctx, cfg, log)
	defer services.Close()

	ingestor, err := services.NewIngestor(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document analyzer")
	}

	receipt, err := ingestor.Ingest(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
	printJSON(log, receipt)
}

func runRecompute(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID")
	budgetID := fs.Int64("budget", 0, "Budget ID")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)
	if *budgetID <= 0 {
		log.Fatal().Msg("Error: -budget is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	services := openServices(ctx, cfg, log)
	defer services.Close()

	b, err := services.Budgets.Recompute(ctx, *owner, *budgetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Recompute failed")
	}
	printJSON(log, b)
}

func runReassign(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("reassign", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)

	ctx := logger.WithContext(context.Background(), log)
	services := openServices(ctx, cfg, log)
	defer services.Close()

	res, err := services.Budgets.ReassignAll(ctx, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Reassign failed")
	}
	printJSON(log, res)
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID")
	budgetID := fs.Int64("budget", 0, "Only export receipts of this budget")
	out := fs.String("out", "receipts.xlsx", "Output XLSX path")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)

	var budgetFilter *int64
	if *budgetID > 0 {
		budgetFilter = budgetID
	}

	ctx := logger.WithContext(context.Background(), log)
	services := openServices(ctx, cfg, log)
	defer services.Close()

	receipts, err := services.Exports.Receipts(ctx, *owner, budgetFilter)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Str("out", *out).Msg("Failed to create output file")
	}
	defer f.Close()

	if err := export.WriteXLSX(f, receipts); err != nil {
		log.Fatal().Err(err).Msg("Failed to write XLSX")
	}
	log.Info().Int("receipts", len(receipts)).Str("out", *out).Msg("Export written")
}

func runReport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	owner := fs.Int64("owner", 0, "Owner ID")
	budgetID := fs.Int64("budget", 0, "Budget ID")
	pdfPath := fs.String("pdf", "", "Write the report as PDF to this path instead of printing JSON")
	fs.Parse(os.Args[2:])
	requireOwner(log, *owner)
	if *budgetID <= 0 {
		log.Fatal().Msg("Error: -budget is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	services := openServices(ctx, cfg, log)
	defer services.Close()

	rep, err := services.Exports.BudgetReport(ctx, *owner, *budgetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Report failed")
	}

	if *pdfPath == "" {
		printJSON(log, rep)
		return
	}

	f, err := os.Create(*pdfPath)
	if err != nil {
		log.Fatal().Err(err).Str("out", *pdfPath).Msg("Failed to create output file")
	}
	defer f.Close()
	if err := export.WriteReportPDF(f, rep); err != nil {
		log.Fatal().Err(err).Msg("Failed to write PDF")
	}
	log.Info().Str("out", *pdfPath).Msg("Report written")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
	"github.com/dvloznov/statement-reconciler/internal/statement"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	boot := logger.New()
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	switch os.Args[1] {
	case "ingest":
		runIngest(log, cfg)
	case "review":
		runReview(log, cfg)
	case "apply":
		runApply(log, cfg)
	case "delete":
		runDelete(log, cfg)
	case "archive":
		runArchive(log, cfg)
	case "report":
		runReport(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Reconciler CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Parse a local OFX/CSV statement into a reconciliation batch")
	fmt.Println("  review    Show a batch with its items, suggestions and stats")
	fmt.Println("  apply     Apply a JSON file of decisions to a batch")
	fmt.Println("  delete    Delete a batch (ledger transactions are kept)")
	fmt.Println("  archive   Upload a statement into the GCS inbox for the worker")
	fmt.Println("  report    Summarize exported batches from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openApp builds the application for one command run.
func openApp(log zerolog.Logger, cfg *config.Config, timeout time.Duration) (context.Context, *app.App, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return ctx, a, func() {
		a.Close()
		cancel()
	}
}

func runIngest(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "Path to the statement file")
	account := fs.String("account", "", "Account ID")
	owner := fs.String("owner", "", "Owner ID")
	format := fs.String("format", "", "ofx or csv (detected when empty)")
	delimiter := fs.String("delimiter", "", "CSV delimiter")
	dateColumn := fs.String("date-column", "", "CSV date column")
	descColumn := fs.String("description-column", "", "CSV description column")
	amountColumn := fs.String("amount-column", "", "CSV amount column")
	dateFormat := fs.String("date-format", "", "CSV date format, e.g. %d/%m/%Y")
	encoding := fs.String("encoding", "", "CSV text encoding, e.g. latin1")
	noHeader := fs.Bool("no-header", false, "CSV has no header row")
	db := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *file == "" || *account == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli ingest -file PATH -account ID -owner ID")
	}
	parsedFormat, err := statement.ParseFormat(*format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid format")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement")
	}

	csvOpts := statement.CSVOptions{
		Delimiter:         *delimiter,
		DateColumn:        *dateColumn,
		DescriptionColumn: *descColumn,
		AmountColumn:      *amountColumn,
		DateFormat:        *dateFormat,
		Encoding:          *encoding,
	}
	if *noHeader {
		csvOpts.HasHeader = statement.Bool(false)
	}

	cfg.DatabasePath = *db
	ctx, a, done := openApp(log, cfg, 5*time.Minute)
	defer done()

	view, err := a.Orchestrator.Ingest(ctx, reconcile.IngestRequest{
		Data:      data,
		Filename:  filepath.Base(*file),
		AccountID: *account,
		OwnerID:   *owner,
		Format:    parsedFormat,
		CSV:       csvOpts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	printView(view)
}

func runReview(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	batch := fs.String("batch", "", "Batch ID")
	owner := fs.String("owner", "", "Owner ID")
	db := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *batch == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli review -batch ID -owner ID")
	}

	cfg.DatabasePath = *db
	ctx, a, done := openApp(log, cfg, time.Minute)
	defer done()

	view, err := a.Orchestrator.GetBatch(ctx, *owner, *batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load batch")
	}
	printView(view)
}

func runApply(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	batch := fs.String("batch", "", "Batch ID")
	owner := fs.String("owner", "", "Owner ID")
	decisionsFile := fs.String("decisions", "", "JSON file with [{item_id, action, transaction_id, category_id}]")
	defaultCategory := fs.String("default-category", "", "Category name for imports that carry no category_id")
	db := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *batch == "" || *owner == "" || *decisionsFile == "" {
		log.Fatal().Msg("Usage: cli apply -batch ID -owner ID -decisions FILE [-default-category NAME]")
	}
	raw, err := os.ReadFile(*decisionsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read decisions")
	}
	decisions, err := domain.DecodeDecisions(raw)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid decisions")
	}

	cfg.DatabasePath = *db
	ctx, a, done := openApp(log, cfg, 5*time.Minute)
	defer done()

	if *defaultCategory != "" {
		category, err := a.Store.FindCategoryByName(ctx, *owner, *defaultCategory)
		if err != nil {
			log.Fatal().Err(err).Str("category", *defaultCategory).Msg("Unknown category")
		}
		decisions = withDefaultCategory(decisions, category.ID)
	}

	result, err := a.Orchestrator.ApplyDecisions(ctx, *owner, *batch, decisions)
	if err != nil {
		log.Fatal().Err(err).Msg("Applying decisions failed")
	}

	fmt.Printf("Batch %s is %s\n", result.Batch.ID, result.Batch.Status)
	fmt.Printf("  Matched:  %d\n", result.Matched)
	fmt.Printf("  Imported: %d\n", result.Imported)
	fmt.Printf("  Ignored:  %d\n", result.Ignored)
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped:  %v\n", result.Skipped)
	}
}

// withDefaultCategory sets categoryID on import decisions that have none.
func withDefaultCategory(decisions []domain.Decision, categoryID string) []domain.Decision {
	out := make([]domain.Decision, len(decisions))
	for i, d := range decisions {
		if imp, ok := d.(domain.ImportDecision); ok && imp.CategoryID == nil {
			id := categoryID
			imp.CategoryID = &id
			d = imp
		}
		out[i] = d
	}
	return out
}

func runDelete(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	batch := fs.String("batch", "", "Batch ID")
	owner := fs.String("owner", "", "Owner ID")
	db := fs.String("db", cfg.DatabasePath, "SQLite database path")
	fs.Parse(os.Args[2:])

	if *batch == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli delete -batch ID -owner ID")
	}

	cfg.DatabasePath = *db
	ctx, a, done := openApp(log, cfg, time.Minute)
	defer done()

	if err := a.Orchestrator.DeleteBatch(ctx, *owner, *batch); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted batch %s\n", *batch)
}

func runArchive(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	file := fs.String("file", "", "Path to local statement file")
	bucket := fs.String("bucket", cfg.GCSBucket, "GCS bucket name")
	account := fs.String("account", "", "Account ID")
	owner := fs.String("owner", "", "Owner ID")
	inbox := fs.String("inbox", cfg.GCSInboxPrefix, "Inbox prefix watched by the worker")
	fs.Parse(os.Args[2:])

	if *file == "" || *bucket == "" || *account == "" || *owner == "" {
		log.Fatal().Msg("Usage: cli archive -file PATH -bucket NAME -account ID -owner ID")
	}

	cfg.GCSBucket = *bucket
	ctx, a, done := openApp(log, cfg, 5*time.Minute)
	defer done()

	object := path.Join(*inbox, *owner, *account, filepath.Base(*file))
	log.Info().
		Str("bucket", *bucket).
		Str("object", object).
		Str("file", *file).
		Msg("Uploading statement to GCS")

	if err := a.Objects.UploadFile(ctx, object, *file); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to gs://%s/%s\n", *file, *bucket, object)
}

func runReport(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner ID")
	from := fs.String("from", "", "First statement end date (YYYY-MM-DD)")
	to := fs.String("to", "", "Last statement end date (YYYY-MM-DD)")
	fs.Parse(os.Args[2:])

	if *owner == "" || *from == "" || *to == "" {
		log.Fatal().Msg("Usage: cli report -owner ID -from YYYY-MM-DD -to YYYY-MM-DD")
	}
	fromDate, err := civil.ParseDate(*from)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -from date")
	}
	toDate, err := civil.ParseDate(*to)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -to date")
	}

	ctx, a, done := openApp(log, cfg, 5*time.Minute)
	defer done()
	if a.Exporter == nil {
		log.Fatal().Msg("BigQuery is not configured (set GCP_PROJECT_ID and BQ_DATASET)")
	}

	rows, err := a.Exporter.Summarize(ctx, *owner, fromDate, toDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Report query failed")
	}

	fmt.Printf("\n=== Reconciliation summary %s .. %s ===\n", fromDate, toDate)
	for _, r := range rows {
		fmt.Printf("\nAccount %s\n", r.AccountID)
		fmt.Printf("   Batches:  %d\n", r.Batches)
		fmt.Printf("   Records:  %d\n", r.Records)
		fmt.Printf("   Matched:  %d\n", r.Matched)
		fmt.Printf("   Imported: %d\n", r.Imported)
		fmt.Printf("   Ignored:  %d\n", r.Ignored)
	}
	fmt.Println()
}

func printView(view *reconcile.BatchView) {
	b := view.Batch
	fmt.Println("\n=== Batch Details ===")
	fmt.Printf("ID:         %s\n", b.ID)
	fmt.Printf("Account ID: %s\n", b.AccountID)
	fmt.Printf("File:       %s (%s)\n", b.Filename, b.Format)
	fmt.Printf("Status:     %s\n", b.Status)
	if b.StartDate != nil && b.EndDate != nil {
		fmt.Printf("Period:     %s .. %s\n", b.StartDate, b.EndDate)
	}
	if b.ArchiveURI != "" {
		fmt.Printf("Archive:    %s\n", b.ArchiveURI)
	}
	s := view.Stats
	fmt.Printf("Matches:    %d strong (%.1f%%), %d medium (%.1f%%), %d none (%.1f%%)\n",
		s.Strong, s.StrongPct, s.Medium, s.MediumPct, s.None, s.NonePct)

	fmt.Printf("\n=== Items (%d) ===\n", len(view.Items))
	for i, it := range view.Items {
		fmt.Printf("\n%d. %s\n", i+1, it.Description)
		fmt.Printf("   Item:       %s\n", it.ID)
		fmt.Printf("   Date:       %s\n", it.OccurredOn)
		fmt.Printf("   Amount:     %s %s\n", it.Amount.StringFixed(2), it.Direction)
		fmt.Printf("   Suggestion: %s (score %d)\n", it.Suggestion, it.Score)
		if it.SuggestedTransactionID != nil {
			fmt.Printf("   Match:      %s\n", *it.SuggestedTransactionID)
		}
		if it.SuggestedCategoryID != nil {
			fmt.Printf("   Category:   %s\n", *it.SuggestedCategoryID)
		}
	}
	fmt.Println()
}

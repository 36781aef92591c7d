// Command migrate applies schema migrations to the SQLite ledger or to the
// BigQuery reporting dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

func main() {
	boot := logger.New()
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		target        = flag.String("target", "sqlite", "Migration target: sqlite or bigquery")
		dbPath        = flag.String("db", cfg.DatabasePath, "SQLite database path")
		projectID     = flag.String("project", cfg.GCPProjectID, "GCP project ID (bigquery target)")
		datasetID     = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID")
		credentials   = flag.String("credentials", cfg.GoogleCredentialsFile, "Service account JSON file")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to BigQuery migrations directory")
	)
	flag.Parse()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	switch *target {
	case "sqlite":
		err = migrateSQLite(ctx, log, *dbPath)
	case "bigquery":
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag (or GCP_PROJECT_ID) is required for the bigquery target")
		}
		var opts []option.ClientOption
		if *credentials != "" {
			opts = append(opts, option.WithCredentialsFile(*credentials))
		}
		err = migrateBigQuery(ctx, log, *projectID, *datasetID, *appliedBy, *migrationsDir, opts)
	default:
		err = fmt.Errorf("unknown target %q", *target)
	}
	if err != nil {
		log.Fatal().Err(err).Str("target", *target).Msg("Migration failed")
	}
}

func migrateSQLite(ctx context.Context, log zerolog.Logger, path string) error {
	// Open applies pending migrations.
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := store.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("db", path).Int("applied", len(applied)).Msg("SQLite schema is up to date")
	return nil
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger, projectID, datasetID, appliedBy, dir string, opts []option.ClientOption) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Running from cmd/migrate.
		dir = "../../" + dir
	}
	migrations, skipped, err := readMigrations(os.DirFS(dir), projectID, datasetID)
	if err != nil {
		return err
	}
	for _, name := range skipped {
		log.Warn().Str("file", name).Msg("Skipping file with invalid format")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	m := &bqMigrator{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}

	log.Info().
		Str("project", projectID).
		Str("dataset", datasetID).
		Int("found", len(migrations)).
		Int("pending", len(pending)).
		Msg("Connected to BigQuery")

	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applied migration")
	}
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	}
	return nil
}

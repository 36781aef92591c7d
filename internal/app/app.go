// Package app wires the store, the orchestrator and the optional Google
// Cloud integrations from a Config. The api, worker and cli binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"

	"github.com/dvloznov/statement-reconciler/internal/aicategory"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/gcsuploader"
	"github.com/dvloznov/statement-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/statement-reconciler/internal/infra/sqlite"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
)

// App holds the long lived dependencies of a process.
type App struct {
	Config       *config.Config
	Store        *sqlite.Store
	Orchestrator *reconcile.Orchestrator

	// Nil when GCS_BUCKET is unset.
	Objects *gcsuploader.Store
	// Nil when BigQuery export is not configured.
	Exporter *bigquery.Exporter

	closers []func() error
}

// New opens the database and connects the configured integrations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a := &App{Config: cfg, Store: store, closers: []func() error{store.Close}}

	var clientOpts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}

	opts := reconcile.Options{
		Threshold: cfg.MatchThreshold,
		CacheTTL:  cfg.CacheTTL,
	}

	if cfg.GCSBucket != "" {
		objects, err := gcsuploader.NewStore(ctx, cfg.GCSBucket, clientOpts...)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Objects = objects
		a.closers = append(a.closers, objects.Close)
		opts.Archiver = objects
	} else {
		log.Warn().Msg("No GCS bucket configured - statement archiving and GCS import are disabled")
	}

	if cfg.BigQueryEnabled() {
		exporter, err := bigquery.NewExporter(ctx, cfg.GCPProjectID, cfg.BQDataset, clientOpts...)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Exporter = exporter
		a.closers = append(a.closers, exporter.Close)
		opts.Exporter = exporter
	}

	if cfg.AICategoryFallback {
		gen, err := aicategory.NewGeminiGenerator(ctx, cfg.GeminiModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		opts.Fallback = aicategory.New(gen)
	}

	a.Orchestrator = reconcile.New(store, opts)

	log.Info().
		Str("db", cfg.DatabasePath).
		Bool("gcs", a.Objects != nil).
		Bool("bigquery", a.Exporter != nil).
		Bool("ai_fallback", opts.Fallback != nil).
		Msg("Application initialized")
	return a, nil
}

// Close releases every opened client in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

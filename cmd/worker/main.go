package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/app"
	"github.com/dvloznov/statement-reconciler/internal/config"
	"github.com/dvloznov/statement-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
)

func main() {
	boot := logger.New()
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		bucket   = flag.String("bucket", cfg.GCSBucket, "GCS bucket holding the statement inbox")
		inbox    = flag.String("inbox", cfg.GCSInboxPrefix, "Inbox prefix; objects are <inbox><owner>/<account>/<file>")
		interval = flag.Duration("interval", cfg.PollInterval, "Inbox poll interval")
	)
	flag.Parse()
	cfg.GCSBucket = *bucket

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.GCSBucket == "" {
		log.Fatal().Msg("Error: --bucket (or GCS_BUCKET) is required")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.WorkerCount, jobStore)

	handler := fileAway(a.Objects, reconcile.IngestJobHandler(a.Orchestrator, a.Objects, cfg.MaxUploadBytes))
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	p := &poller{objects: a.Objects, publisher: jobQueue, inbox: *inbox}
	go p.run(ctx, *interval)

	log.Info().
		Str("bucket", cfg.GCSBucket).
		Str("inbox", *inbox).
		Dur("interval", *interval).
		Msg("Worker service started, polling inbox...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := jobQueue.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancel()

	log.Info().Msg("Worker service stopped")
}

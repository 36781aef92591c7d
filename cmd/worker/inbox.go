package main

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/gcsuploader"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// Object prefixes a statement moves through after leaving the inbox.
const (
	processingPrefix = "processing/"
	processedPrefix  = "processed/"
	failedPrefix     = "failed/"
)

// parseInboxObject splits <inbox><owner>/<account>/<file>.
func parseInboxObject(inbox, object string) (owner, account, filename string, err error) {
	rest, ok := strings.CutPrefix(object, inbox)
	if !ok {
		return "", "", "", fmt.Errorf("object %s is outside inbox %s", object, inbox)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("object %s does not match <owner>/<account>/<file>", object)
	}
	return parts[0], parts[1], parts[2], nil
}

// poller claims new inbox objects and publishes one ingest job per file.
type poller struct {
	objects   gcsuploader.ObjectStore
	publisher jobs.Publisher
	inbox     string
}

// poll runs one pass over the inbox and returns how many jobs it queued.
func (p *poller) poll(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	uris, err := p.objects.List(ctx, p.inbox)
	if err != nil {
		return 0, fmt.Errorf("poll: %w", err)
	}

	queued := 0
	for _, uri := range uris {
		_, object, err := gcsuploader.ParseURI(uri)
		if err != nil {
			return queued, fmt.Errorf("poll: %w", err)
		}
		owner, account, filename, err := parseInboxObject(p.inbox, object)
		if err != nil {
			log.Warn().Err(err).Str("gcs_uri", uri).Msg("Skipping inbox object")
			continue
		}

		// Moving first claims the file so the next pass does not queue it twice.
		claimed, err := p.objects.Move(ctx, uri, path.Join(processingPrefix, owner, account, filename))
		if err != nil {
			return queued, fmt.Errorf("poll: %w", err)
		}
		job := &jobs.IngestStatementJob{GCSURI: claimed, OwnerID: owner, AccountID: account}
		if err := p.publisher.PublishIngestStatement(ctx, job); err != nil {
			return queued, fmt.Errorf("poll: publishing %s: %w", claimed, err)
		}
		log.Info().Str("job_id", job.JobID).Str("gcs_uri", claimed).Msg("Queued statement from inbox")
		queued++
	}
	return queued, nil
}

// run polls until ctx is done.
func (p *poller) run(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.poll(ctx); err != nil {
			log.Error().Err(err).Msg("Inbox poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fileAway moves the statement to processed/ or failed/ once its job has a
// final outcome. Jobs that will be retried keep their file in place.
func fileAway(objects gcsuploader.ObjectStore, next jobs.JobHandler) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		err := next(ctx, job)

		ingest, ok := job.(*jobs.IngestStatementJob)
		if !ok || (err != nil && !jobs.IsPermanent(err)) {
			return err
		}
		dst := finalObject(ingest.GCSURI, err == nil)
		if dst == "" {
			return err
		}
		if _, moveErr := objects.Move(ctx, ingest.GCSURI, dst); moveErr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(moveErr).Str("gcs_uri", ingest.GCSURI).Msg("Failed to move processed statement")
		}
		return err
	}
}

// finalObject maps processing/<rest> to processed/<rest> or failed/<rest>.
// Objects outside processing/ are left alone.
func finalObject(uri string, ok bool) string {
	_, object, err := gcsuploader.ParseURI(uri)
	if err != nil {
		return ""
	}
	rest, found := strings.CutPrefix(object, processingPrefix)
	if !found {
		return ""
	}
	if ok {
		return processedPrefix + rest
	}
	return failedPrefix + rest
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/statement"
)

// permanentIngestErrors fail a job without retrying; the file or the
// account has to change before another attempt can succeed.
var permanentIngestErrors = []error{
	ErrUnsupportedFormat,
	ErrParseFailed,
	ErrNothingToReconcile,
	ErrAccountNotFound,
}

// IngestJobHandler returns a queue handler that fetches the job's statement
// file and ingests it into a new batch.
func IngestJobHandler(o *Orchestrator, fetcher Fetcher, maxBytes int64) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		ingest, ok := job.(*jobs.IngestStatementJob)
		if !ok {
			return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
		}
		log := logger.FromContext(ctx)

		req := IngestRequest{
			Filename:  path.Base(ingest.GCSURI),
			AccountID: ingest.AccountID,
			OwnerID:   ingest.OwnerID,
		}
		if ingest.Format != "" {
			format, err := statement.ParseFormat(ingest.Format)
			if err != nil {
				return jobs.Permanent(err)
			}
			req.Format = format
		}

		data, err := fetcher.Fetch(ctx, ingest.GCSURI, maxBytes)
		if err != nil {
			return fmt.Errorf("fetching statement: %w", err)
		}
		req.Data = data

		view, err := o.Ingest(ctx, req)
		if view != nil && view.Batch != nil {
			ingest.BatchID = view.Batch.ID
		}
		if err != nil {
			for _, target := range permanentIngestErrors {
				if errors.Is(err, target) {
					return jobs.Permanent(err)
				}
			}
			return err
		}

		log.Info().
			Str("batch_id", ingest.BatchID).
			Int("items", len(view.Items)).
			Msg("Statement job ingested")
		return nil
	}
}

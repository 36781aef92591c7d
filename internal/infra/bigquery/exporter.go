// Package bigquery exports completed reconciliation batches to BigQuery for
// reporting and reads aggregate summaries back.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

const (
	batchesTable = "reconciliation_batches"
	itemsTable   = "reconciliation_items"
)

// Exporter writes batches into one dataset.
type Exporter struct {
	client  *bigquery.Client
	dataset string
	now     func() time.Time
}

// NewExporter creates a BigQuery client for projectID.
func NewExporter(ctx context.Context, projectID, dataset string, opts ...option.ClientOption) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{client: client, dataset: dataset, now: time.Now}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportBatch streams the batch row and its item rows. Insert ids are the
// batch and item ids, so a retried export is deduplicated by BigQuery.
func (e *Exporter) ExportBatch(ctx context.Context, b *domain.Batch, items []*domain.Item) error {
	log := logger.FromContext(ctx)
	ds := e.client.Dataset(e.dataset)

	if len(items) > 0 {
		rows := make([]*bigquery.StructSaver, 0, len(items))
		for _, it := range items {
			rows = append(rows, &bigquery.StructSaver{Struct: NewItemRow(b, it), InsertID: it.ID})
		}
		if err := ds.Table(itemsTable).Inserter().Put(ctx, rows); err != nil {
			return fmt.Errorf("ExportBatch: inserting %d items: %w", len(rows), err)
		}
	}

	batchRow := &bigquery.StructSaver{Struct: NewBatchRow(b, e.now()), InsertID: b.ID}
	if err := ds.Table(batchesTable).Inserter().Put(ctx, batchRow); err != nil {
		return fmt.Errorf("ExportBatch: inserting batch %s: %w", b.ID, err)
	}

	log.Info().
		Str("batch_id", b.ID).
		Int("items", len(items)).
		Msg("Exported batch to BigQuery")
	return nil
}

// SummaryRow aggregates exported batches for one account.
type SummaryRow struct {
	AccountID string `bigquery:"account_id"`
	Batches   int64  `bigquery:"batches"`
	Records   int64  `bigquery:"records"`
	Matched   int64  `bigquery:"matched"`
	Imported  int64  `bigquery:"imported"`
	Ignored   int64  `bigquery:"ignored"`
}

// Summarize totals the owner's batches whose statements end within
// [from, to], per account.
func (e *Exporter) Summarize(ctx context.Context, ownerID string, from, to civil.Date) ([]*SummaryRow, error) {
	q := e.client.Query(fmt.Sprintf(`
		SELECT
			account_id,
			COUNT(DISTINCT batch_id) AS batches,
			SUM(total_records) AS records,
			SUM(matched_count) AS matched,
			SUM(imported_count) AS imported,
			SUM(ignored_count) AS ignored
		FROM (
			SELECT * EXCEPT(rn) FROM (
				SELECT *, ROW_NUMBER() OVER (PARTITION BY batch_id ORDER BY exported_ts DESC) AS rn
				FROM `+"`%s.%s`"+`
				WHERE owner_id = @owner_id
			) WHERE rn = 1
		)
		WHERE end_date BETWEEN @from_date AND @to_date
		GROUP BY account_id
		ORDER BY account_id
	`, e.dataset, batchesTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "from_date", Value: from},
		{Name: "to_date", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summarize: query read: %w", err)
	}

	var rows []*SummaryRow
	for {
		var r SummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Summarize: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

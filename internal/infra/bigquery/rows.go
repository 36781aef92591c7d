package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// BatchRow is one completed batch in reconciliation_batches.
type BatchRow struct {
	BatchID   string `bigquery:"batch_id"`   // REQUIRED
	OwnerID   string `bigquery:"owner_id"`   // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	Filename   string              `bigquery:"filename"`    // NULLABLE
	Format     string              `bigquery:"format"`      // REQUIRED
	Status     string              `bigquery:"status"`      // REQUIRED
	ArchiveURI bigquery.NullString `bigquery:"archive_uri"` // NULLABLE

	TotalRecords  int64 `bigquery:"total_records"`
	MatchedCount  int64 `bigquery:"matched_count"`
	ImportedCount int64 `bigquery:"imported_count"`
	IgnoredCount  int64 `bigquery:"ignored_count"`

	StartDate bigquery.NullDate `bigquery:"start_date"` // NULLABLE
	EndDate   bigquery.NullDate `bigquery:"end_date"`   // NULLABLE

	CreatedTS   time.Time              `bigquery:"created_ts"`   // REQUIRED
	CompletedTS bigquery.NullTimestamp `bigquery:"completed_ts"` // NULLABLE
	ExportedTS  time.Time              `bigquery:"exported_ts"`  // REQUIRED
}

// ItemRow is one reviewed statement line in reconciliation_items.
type ItemRow struct {
	ItemID  string `bigquery:"item_id"`  // REQUIRED
	BatchID string `bigquery:"batch_id"` // REQUIRED
	OwnerID string `bigquery:"owner_id"` // REQUIRED

	OccurredOn  civil.Date `bigquery:"occurred_on"` // REQUIRED
	Description string     `bigquery:"description"` // REQUIRED
	Amount      *big.Rat   `bigquery:"amount"`      // REQUIRED NUMERIC
	Direction   string     `bigquery:"direction"`   // REQUIRED

	ExternalReference bigquery.NullString `bigquery:"external_reference"` // NULLABLE

	Status     string `bigquery:"status"`     // REQUIRED
	Suggestion string `bigquery:"suggestion"` // REQUIRED
	Score      int64  `bigquery:"score"`

	TransactionID bigquery.NullString `bigquery:"transaction_id"` // NULLABLE
	CategoryID    bigquery.NullString `bigquery:"category_id"`    // NULLABLE

	ProcessedTS bigquery.NullTimestamp `bigquery:"processed_ts"` // NULLABLE
}

// NewBatchRow converts a batch for export at exportedAt.
func NewBatchRow(b *domain.Batch, exportedAt time.Time) *BatchRow {
	row := &BatchRow{
		BatchID:       b.ID,
		OwnerID:       b.OwnerID,
		AccountID:     b.AccountID,
		Filename:      b.Filename,
		Format:        string(b.Format),
		Status:        string(b.Status),
		ArchiveURI:    nullString(b.ArchiveURI),
		TotalRecords:  int64(b.TotalRecords),
		MatchedCount:  int64(b.MatchedCount),
		ImportedCount: int64(b.ImportedCount),
		IgnoredCount:  int64(b.IgnoredCount),
		CreatedTS:     b.CreatedAt,
		ExportedTS:    exportedAt,
	}
	if b.StartDate != nil {
		row.StartDate = bigquery.NullDate{Date: *b.StartDate, Valid: true}
	}
	if b.EndDate != nil {
		row.EndDate = bigquery.NullDate{Date: *b.EndDate, Valid: true}
	}
	if b.CompletedAt != nil {
		row.CompletedTS = bigquery.NullTimestamp{Timestamp: *b.CompletedAt, Valid: true}
	}
	return row
}

// NewItemRow converts an item of batch b. The category is the one chosen at
// import, falling back to the suggested one.
func NewItemRow(b *domain.Batch, it *domain.Item) *ItemRow {
	row := &ItemRow{
		ItemID:            it.ID,
		BatchID:           b.ID,
		OwnerID:           b.OwnerID,
		OccurredOn:        it.OccurredOn,
		Description:       it.Description,
		Amount:            it.Amount.Rat(),
		Direction:         string(it.Direction),
		ExternalReference: nullString(it.ExternalReference),
		Status:            string(it.Status),
		Suggestion:        string(it.Suggestion),
		Score:             int64(it.Score),
	}
	if it.TransactionID != nil {
		row.TransactionID = nullString(*it.TransactionID)
	}
	if it.SuggestedCategoryID != nil {
		row.CategoryID = nullString(*it.SuggestedCategoryID)
	}
	if it.ProcessedAt != nil {
		row.ProcessedTS = bigquery.NullTimestamp{Timestamp: *it.ProcessedAt, Valid: true}
	}
	return row
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

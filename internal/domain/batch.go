package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Format is a statement file format.
type Format string

const (
	FormatOFX     Format = "ofx"
	FormatCSV     Format = "csv"
	FormatUnknown Format = "unknown"
)

// BatchStatus is the lifecycle state of a reconciliation batch.
type BatchStatus string

const (
	BatchProcessing    BatchStatus = "processing"
	BatchPendingReview BatchStatus = "pending_review"
	BatchCompleted     BatchStatus = "completed"
	BatchFailed        BatchStatus = "failed"
)

// Terminal reports whether no further mutation is allowed.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchProcessing:    {BatchPendingReview, BatchFailed},
	BatchPendingReview: {BatchCompleted},
}

// CanTransition reports whether a batch may move from one status to another.
func CanTransition(from, to BatchStatus) bool {
	for _, next := range batchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Batch is one statement upload session.
type Batch struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	AccountID     string      `json:"account_id"`
	Filename      string      `json:"filename"`
	Format        Format      `json:"format"`
	Status        BatchStatus `json:"status"`
	TotalRecords  int         `json:"total_records"`
	MatchedCount  int         `json:"matched_count"`
	ImportedCount int         `json:"imported_count"`
	IgnoredCount  int         `json:"ignored_count"`
	StartDate     *civil.Date `json:"start_date,omitempty"`
	EndDate       *civil.Date `json:"end_date,omitempty"`
	ArchiveURI    string      `json:"archive_uri,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// ItemStatus is the review state of one reconciliation item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemMatched  ItemStatus = "matched"
	ItemImported ItemStatus = "imported"
	ItemIgnored  ItemStatus = "ignored"
)

// Classification is the provisional action proposed for an item at ingest.
type Classification string

const (
	ClassAutoReconcile Classification = "auto_reconcile"
	ClassNeedsReview   Classification = "needs_review"
	ClassImportNew     Classification = "import_new"
)

const (
	// AutoReconcileScore is the lowest score classified as auto_reconcile.
	AutoReconcileScore = 90
	// ReviewScore is the lowest score classified as needs_review.
	ReviewScore = 70
)

// Classify maps a best-match score to a provisional action.
// hasMatch is false when the finder returned no candidate.
func Classify(score int, hasMatch bool) Classification {
	switch {
	case hasMatch && score >= AutoReconcileScore:
		return ClassAutoReconcile
	case hasMatch && score >= ReviewScore:
		return ClassNeedsReview
	default:
		return ClassImportNew
	}
}

// Item is one ingested record persisted for review inside a batch.
type Item struct {
	ID                     string           `json:"id"`
	BatchID                string           `json:"batch_id"`
	OccurredOn             civil.Date       `json:"occurred_on"`
	Description            string           `json:"description"`
	Amount                 decimal.Decimal  `json:"amount"`
	Direction              Direction        `json:"direction"`
	ExternalReference      string           `json:"external_reference,omitempty"`
	BalanceAfter           *decimal.Decimal `json:"balance_after,omitempty"`
	Status                 ItemStatus       `json:"status"`
	Suggestion             Classification   `json:"suggestion"`
	Score                  int              `json:"score"`
	SuggestedTransactionID *string          `json:"suggested_transaction_id,omitempty"`
	TransactionID          *string          `json:"transaction_id,omitempty"`
	SuggestedCategoryID    *string          `json:"suggested_category_id,omitempty"`
	Candidates             []MatchCandidate `json:"candidates,omitempty"`
	ProcessedAt            *time.Time       `json:"processed_at,omitempty"`
}

// Record returns the normalized statement fields of the item.
func (it Item) Record() IngestedRecord {
	return IngestedRecord{
		OccurredOn:        it.OccurredOn,
		Description:       it.Description,
		Amount:            it.Amount,
		Direction:         it.Direction,
		ExternalReference: it.ExternalReference,
		BalanceAfter:      it.BalanceAfter,
	}
}

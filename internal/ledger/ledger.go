// Package ledger defines the storage contracts the reconciliation core needs
// from the surrounding finance tracker.
package ledger

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the owner.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyLinked is returned when a transaction is already linked to a reconciliation item.
	ErrAlreadyLinked = errors.New("transaction already linked to a reconciliation item")
)

// Transactions is the read side of the ledger used for matching and
// category suggestion.
type Transactions interface {
	matching.CandidateSource
	matching.HistorySource

	// GetAccount returns the account if it belongs to the owner.
	GetAccount(ctx context.Context, ownerID, accountID string) (*Account, error)

	// FindCategoryByName looks a category up by (owner, name), case-insensitively.
	FindCategoryByName(ctx context.Context, ownerID, name string) (*domain.Category, error)

	// ListCategories returns all categories of the owner.
	ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error)
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	AccountID string
	Status    domain.BatchStatus
	Limit     int
	Offset    int
}

// Batches persists reconciliation batches and their items.
type Batches interface {
	CreateBatch(ctx context.Context, batch *domain.Batch) error
	GetBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error)
	ListBatches(ctx context.Context, ownerID string, filter BatchFilter) ([]*domain.Batch, error)
	// UpdateBatch writes status, counters, archive uri, failure reason and completion time.
	UpdateBatch(ctx context.Context, batch *domain.Batch) error
	InsertItems(ctx context.Context, items []*domain.Item) error
	ListItems(ctx context.Context, batchID string) ([]*domain.Item, error)
	// DeleteBatch removes the batch and its items. Linked transactions are kept.
	DeleteBatch(ctx context.Context, ownerID, batchID string) error
}

// Tx is the unit of work used to apply review decisions atomically.
type Tx interface {
	GetBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error)
	GetItem(ctx context.Context, batchID, itemID string) (*domain.Item, error)
	GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error)
	GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error)
	IsLinked(ctx context.Context, transactionID string) (bool, error)
	CreateTransaction(ctx context.Context, tx domain.NewTransaction) (string, error)
	UpdateItem(ctx context.Context, item *domain.Item) error
	UpdateBatch(ctx context.Context, batch *domain.Batch) error
	CountItems(ctx context.Context, batchID string) (map[domain.ItemStatus]int, error)
}

// Store is the full ledger used by the orchestrator.
type Store interface {
	Transactions
	Batches

	// WithTx runs fn in a single database transaction. Any error returned by
	// fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Account is a ledger account statements are reconciled against.
type Account struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PoolWindow widens a statement date range by the matching window so one
// candidate pool query serves every record of a batch.
func PoolWindow(dr domain.DateRange) (from, to civil.Date, ok bool) {
	if dr.Start == nil || dr.End == nil {
		return civil.Date{}, civil.Date{}, false
	}
	from, _ = matching.Window(*dr.Start)
	_, to = matching.Window(*dr.End)
	return from, to, true
}

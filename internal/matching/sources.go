package matching

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_sources.go -source=sources.go

// CandidateSource provides ledger transactions on an account in a date range
// that no reconciliation item links to yet.
type CandidateSource interface {
	CandidatePool(ctx context.Context, ownerID, accountID string, from, to civil.Date) ([]domain.Transaction, error)
}

// HistorySource provides an owner's categorized transactions of one
// direction, most recent first.
type HistorySource interface {
	CategoryHistory(ctx context.Context, ownerID string, direction domain.Direction, limit int) ([]CategorizedEntry, error)
}

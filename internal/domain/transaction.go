package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is a ledger entry owned by the surrounding finance tracker.
// Reconciliation reads it as a match candidate and only creates new ones
// when an item is imported.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	AccountID   string          `json:"account_id"`
	OccurredOn  civil.Date      `json:"occurred_on"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	CategoryID  *string         `json:"category_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewTransaction holds the fields needed to create a ledger entry.
type NewTransaction struct {
	OwnerID     string
	AccountID   string
	OccurredOn  civil.Date
	Description string
	Amount      decimal.Decimal
	Direction   Direction
	CategoryID  *string
}

// Category is a user-defined transaction category.
type Category struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	Name    string    `json:"name"`
	Kind    Direction `json:"kind"`
	Color   string    `json:"color,omitempty"`
}

// MatchCandidate pairs a ledger transaction with its confidence score.
type MatchCandidate struct {
	Transaction Transaction `json:"transaction"`
	Score       int         `json:"score"`
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

const transactionColumns = `t.id, t.owner_id, t.account_id, t.occurred_on, t.description, t.amount, t.direction, t.category_id, t.created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		tx                          domain.Transaction
		occurredOn, amount, created string
		direction                   string
		categoryID                  sql.NullString
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &tx.AccountID, &occurredOn, &tx.Description, &amount, &direction, &categoryID, &created); err != nil {
		return nil, err
	}

	var err error
	if tx.OccurredOn, err = civil.ParseDate(occurredOn); err != nil {
		return nil, fmt.Errorf("transaction %s: occurred_on %q: %w", tx.ID, occurredOn, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %s: amount %q: %w", tx.ID, amount, err)
	}
	tx.Direction = domain.Direction(direction)
	tx.CategoryID = stringPtr(categoryID)
	tx.CreatedAt, _ = parseTime(created)
	return &tx, nil
}

// CandidatePool implements matching.CandidateSource. Transactions linked by
// any reconciliation item are excluded.
func (s *Store) CandidatePool(ctx context.Context, ownerID, accountID string, from, to civil.Date) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.owner_id = ?
		  AND t.account_id = ?
		  AND t.occurred_on BETWEEN ? AND ?
		  AND NOT EXISTS (
		    SELECT 1 FROM reconciliation_items ri WHERE ri.transaction_id = t.id
		  )
		ORDER BY t.occurred_on, t.id`,
		ownerID, accountID, from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("CandidatePool: query: %w", err)
	}
	defer rows.Close()

	pool := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("CandidatePool: scan: %w", err)
		}
		pool = append(pool, *tx)
	}
	return pool, rows.Err()
}

// CategoryHistory implements matching.HistorySource. The limit applies to
// all of the owner's transactions in direction; uncategorized ones come back
// with a nil Category so the sample is not widened past them.
func (s *Store) CategoryHistory(ctx context.Context, ownerID string, direction domain.Direction, limit int) ([]matching.CategorizedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.description, c.id, c.owner_id, c.name, c.kind, c.color
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.owner_id = ? AND t.direction = ?
		ORDER BY t.occurred_on DESC, t.created_at DESC
		LIMIT ?`,
		ownerID, string(direction), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("CategoryHistory: query: %w", err)
	}
	defer rows.Close()

	var history []matching.CategorizedEntry
	for rows.Next() {
		var (
			entry                         matching.CategorizedEntry
			id, catOwner, name, kind, col sql.NullString
		)
		if err := rows.Scan(&entry.Description, &id, &catOwner, &name, &kind, &col); err != nil {
			return nil, fmt.Errorf("CategoryHistory: scan: %w", err)
		}
		if id.Valid {
			entry.Category = &domain.Category{
				ID:      id.String,
				OwnerID: catOwner.String,
				Name:    name.String,
				Kind:    domain.Direction(kind.String),
				Color:   col.String,
			}
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// CreateTransaction inserts a ledger transaction outside any unit of work.
func (s *Store) CreateTransaction(ctx context.Context, nt domain.NewTransaction) (string, error) {
	return createTransaction(ctx, s.db, nt)
}

// GetTransaction returns a ledger transaction visible to the owner.
func (s *Store) GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, ownerID, transactionID)
}

// CreateTransaction implements ledger.Tx.
func (t *txStore) CreateTransaction(ctx context.Context, nt domain.NewTransaction) (string, error) {
	return createTransaction(ctx, t.q, nt)
}

// GetTransaction implements ledger.Tx.
func (t *txStore) GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error) {
	return getTransaction(ctx, t.q, ownerID, transactionID)
}

// IsLinked implements ledger.Tx.
func (t *txStore) IsLinked(ctx context.Context, transactionID string) (bool, error) {
	var n int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_items WHERE transaction_id = ?`, transactionID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("IsLinked: %w", err)
	}
	return n > 0, nil
}

func createTransaction(ctx context.Context, q querier, nt domain.NewTransaction) (string, error) {
	id := uuid.NewString()
	if _, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, account_id, occurred_on, description, amount, direction, category_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nt.OwnerID, nt.AccountID, nt.OccurredOn.String(), nt.Description,
		nt.Amount.Abs().String(), string(nt.Direction), nullString(nt.CategoryID), formatTime(time.Now()),
	); err != nil {
		return "", fmt.Errorf("createTransaction: insert: %w", err)
	}
	return id, nil
}

func getTransaction(ctx context.Context, q querier, ownerID, transactionID string) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ? AND t.owner_id = ?`,
		transactionID, ownerID,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %s: %w", transactionID, notFound(err))
	}
	return tx, nil
}

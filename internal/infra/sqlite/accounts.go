package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
)

// CreateAccount inserts an account and returns it with its generated ID.
func (s *Store) CreateAccount(ctx context.Context, ownerID, name string) (*ledger.Account, error) {
	acc := &ledger.Account{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		acc.ID, acc.OwnerID, acc.Name, formatTime(acc.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("CreateAccount: insert: %w", err)
	}
	return acc, nil
}

// GetAccount implements ledger.Transactions.
func (s *Store) GetAccount(ctx context.Context, ownerID, accountID string) (*ledger.Account, error) {
	var (
		acc       ledger.Account
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM accounts WHERE id = ? AND owner_id = ?`,
		accountID, ownerID,
	).Scan(&acc.ID, &acc.OwnerID, &acc.Name, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %s: %w", accountID, notFound(err))
	}
	acc.CreatedAt, _ = parseTime(createdAt)
	return &acc, nil
}

// CreateCategory inserts a category. An empty ID is generated.
func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner_id, name, kind, color) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, string(c.Kind), c.Color,
	); err != nil {
		return nil, fmt.Errorf("CreateCategory: insert: %w", err)
	}
	return &c, nil
}

const categoryColumns = `id, owner_id, name, kind, color`

func scanCategory(row interface{ Scan(...any) error }) (*domain.Category, error) {
	var (
		c    domain.Category
		kind string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &kind, &c.Color); err != nil {
		return nil, err
	}
	c.Kind = domain.Direction(kind)
	return &c, nil
}

// FindCategoryByName implements ledger.Transactions.
func (s *Store) FindCategoryByName(ctx context.Context, ownerID, name string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? AND lower(name) = lower(?) ORDER BY name LIMIT 1`,
		ownerID, name,
	)
	c, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("FindCategoryByName: %q: %w", name, notFound(err))
	}
	return c, nil
}

// ListCategories implements ledger.Transactions.
func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? ORDER BY kind, name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetCategory implements ledger.Tx.
func (t *txStore) GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID)
	c, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("GetCategory: %s: %w", categoryID, notFound(err))
	}
	return c, nil
}

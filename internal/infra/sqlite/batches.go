package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
)

const batchColumns = `id, owner_id, account_id, filename, format, status, total_records, matched_count,
	imported_count, ignored_count, start_date, end_date, archive_uri, failure_reason, created_at, completed_at`

func scanBatch(row interface{ Scan(...any) error }) (*domain.Batch, error) {
	var (
		b                  domain.Batch
		format, status     string
		startDate, endDate sql.NullString
		createdAt          string
		completedAt        sql.NullString
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.AccountID, &b.Filename, &format, &status, &b.TotalRecords,
		&b.MatchedCount, &b.ImportedCount, &b.IgnoredCount, &startDate, &endDate, &b.ArchiveURI,
		&b.FailureReason, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	b.Format = domain.Format(format)
	b.Status = domain.BatchStatus(status)
	b.StartDate = datePtr(startDate)
	b.EndDate = datePtr(endDate)
	b.CreatedAt, _ = parseTime(createdAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

// CreateBatch implements ledger.Batches.
func (s *Store) CreateBatch(ctx context.Context, b *domain.Batch) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.AccountID, b.Filename, string(b.Format), string(b.Status), b.TotalRecords,
		b.MatchedCount, b.ImportedCount, b.IgnoredCount, nullDate(b.StartDate), nullDate(b.EndDate),
		b.ArchiveURI, b.FailureReason, formatTime(b.CreatedAt), nullTime(b.CompletedAt),
	); err != nil {
		return fmt.Errorf("CreateBatch: insert: %w", err)
	}
	return nil
}

// GetBatch implements ledger.Batches.
func (s *Store) GetBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error) {
	return getBatch(ctx, s.db, ownerID, batchID)
}

// GetBatch implements ledger.Tx.
func (t *txStore) GetBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error) {
	return getBatch(ctx, t.q, ownerID, batchID)
}

func getBatch(ctx context.Context, q querier, ownerID, batchID string) (*domain.Batch, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM reconciliation_batches WHERE id = ? AND owner_id = ?`, batchID, ownerID)
	b, err := scanBatch(row)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %s: %w", batchID, notFound(err))
	}
	return b, nil
}

// ListBatches implements ledger.Batches. Newest first.
func (s *Store) ListBatches(ctx context.Context, ownerID string, filter ledger.BatchFilter) ([]*domain.Batch, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{ownerID}
	)
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + batchColumns + ` FROM reconciliation_batches WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: query: %w", err)
	}
	defer rows.Close()

	batches := []*domain.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBatches: scan: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpdateBatch implements ledger.Batches.
func (s *Store) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	return updateBatch(ctx, s.db, b)
}

// UpdateBatch implements ledger.Tx.
func (t *txStore) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	return updateBatch(ctx, t.q, b)
}

func updateBatch(ctx context.Context, q querier, b *domain.Batch) error {
	res, err := q.ExecContext(ctx, `
		UPDATE reconciliation_batches
		SET status = ?, total_records = ?, matched_count = ?, imported_count = ?, ignored_count = ?,
		    start_date = ?, end_date = ?, archive_uri = ?, failure_reason = ?, completed_at = ?
		WHERE id = ?`,
		string(b.Status), b.TotalRecords, b.MatchedCount, b.ImportedCount, b.IgnoredCount,
		nullDate(b.StartDate), nullDate(b.EndDate), b.ArchiveURI, b.FailureReason, nullTime(b.CompletedAt),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateBatch: %s: %w", b.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateBatch: %s: %w", b.ID, ledger.ErrNotFound)
	}
	return nil
}

// DeleteBatch implements ledger.Batches. Items go with the batch; the
// transactions they point to are left untouched.
func (s *Store) DeleteBatch(ctx context.Context, ownerID, batchID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getBatch(ctx, tx, ownerID, batchID); err != nil {
			return fmt.Errorf("DeleteBatch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reconciliation_items WHERE batch_id = ?`, batchID); err != nil {
			return fmt.Errorf("DeleteBatch: deleting items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reconciliation_batches WHERE id = ?`, batchID); err != nil {
			return fmt.Errorf("DeleteBatch: deleting batch: %w", err)
		}
		return nil
	})
}

const itemColumns = `id, batch_id, occurred_on, description, amount, direction, external_reference,
	balance_after, status, suggestion, score, suggested_transaction_id, transaction_id,
	suggested_category_id, candidates, processed_at`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var (
		it                             domain.Item
		occurredOn, amount, direction  string
		status, suggestion, candidates string
		balance, suggestedTx, linkedTx sql.NullString
		suggestedCategory, processedAt sql.NullString
	)
	if err := row.Scan(&it.ID, &it.BatchID, &occurredOn, &it.Description, &amount, &direction,
		&it.ExternalReference, &balance, &status, &suggestion, &it.Score, &suggestedTx, &linkedTx,
		&suggestedCategory, &candidates, &processedAt); err != nil {
		return nil, err
	}

	var err error
	if it.OccurredOn, err = civil.ParseDate(occurredOn); err != nil {
		return nil, fmt.Errorf("item %s: occurred_on %q: %w", it.ID, occurredOn, err)
	}
	if it.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("item %s: amount %q: %w", it.ID, amount, err)
	}
	if err := json.Unmarshal([]byte(candidates), &it.Candidates); err != nil {
		return nil, fmt.Errorf("item %s: candidates: %w", it.ID, err)
	}
	it.Direction = domain.Direction(direction)
	it.BalanceAfter = decimalPtr(balance)
	it.Status = domain.ItemStatus(status)
	it.Suggestion = domain.Classification(suggestion)
	it.SuggestedTransactionID = stringPtr(suggestedTx)
	it.TransactionID = stringPtr(linkedTx)
	it.SuggestedCategoryID = stringPtr(suggestedCategory)
	it.ProcessedAt = timePtr(processedAt)
	return &it, nil
}

// InsertItems implements ledger.Batches. Items are stored in slice order.
func (s *Store) InsertItems(ctx context.Context, items []*domain.Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reconciliation_items (`+itemColumns+`, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("InsertItems: prepare: %w", err)
		}
		defer stmt.Close()

		for i, it := range items {
			candidates, err := json.Marshal(nonNilCandidates(it.Candidates))
			if err != nil {
				return fmt.Errorf("InsertItems: candidates for %s: %w", it.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				it.ID, it.BatchID, it.OccurredOn.String(), it.Description, it.Amount.String(), string(it.Direction),
				it.ExternalReference, nullDecimal(it.BalanceAfter), string(it.Status), string(it.Suggestion), it.Score,
				nullString(it.SuggestedTransactionID), nullString(it.TransactionID), nullString(it.SuggestedCategoryID),
				string(candidates), nullTime(it.ProcessedAt), i,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("InsertItems: %s: %w", it.ID, ledger.ErrAlreadyLinked)
				}
				return fmt.Errorf("InsertItems: %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

func nonNilCandidates(c []domain.MatchCandidate) []domain.MatchCandidate {
	if c == nil {
		return []domain.MatchCandidate{}
	}
	return c
}

// ListItems implements ledger.Batches.
func (s *Store) ListItems(ctx context.Context, batchID string) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM reconciliation_items WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, fmt.Errorf("ListItems: query: %w", err)
	}
	defer rows.Close()

	items := []*domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ListItems: scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem implements ledger.Tx.
func (t *txStore) GetItem(ctx context.Context, batchID, itemID string) (*domain.Item, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM reconciliation_items WHERE id = ? AND batch_id = ?`, itemID, batchID)
	it, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("GetItem: %s: %w", itemID, notFound(err))
	}
	return it, nil
}

// UpdateItem implements ledger.Tx. A unique violation on the link column
// means another item already reconciles that transaction.
func (t *txStore) UpdateItem(ctx context.Context, it *domain.Item) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE reconciliation_items
		SET status = ?, transaction_id = ?, suggested_category_id = ?, processed_at = ?
		WHERE id = ? AND batch_id = ?`,
		string(it.Status), nullString(it.TransactionID), nullString(it.SuggestedCategoryID),
		nullTime(it.ProcessedAt), it.ID, it.BatchID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("UpdateItem: %s: %w", it.ID, ledger.ErrAlreadyLinked)
	}
	if err != nil {
		return fmt.Errorf("UpdateItem: %s: %w", it.ID, err)
	}
	return nil
}

// CountItems implements ledger.Tx.
func (t *txStore) CountItems(ctx context.Context, batchID string) (map[domain.ItemStatus]int, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM reconciliation_items WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return nil, fmt.Errorf("CountItems: query: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ItemStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("CountItems: scan: %w", err)
		}
		counts[domain.ItemStatus(status)] = n
	}
	return counts, rows.Err()
}

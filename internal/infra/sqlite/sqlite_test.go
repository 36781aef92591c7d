package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

const owner = "owner-1"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func seedTransaction(t *testing.T, s *Store, accountID string, on civil.Date, desc, amount string, dir domain.Direction) string {
	t.Helper()
	id, err := s.CreateTransaction(context.Background(), domain.NewTransaction{
		OwnerID:     owner,
		AccountID:   accountID,
		OccurredOn:  on,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Direction:   dir,
	})
	require.NoError(t, err)
	return id
}

func newBatch(accountID string) *domain.Batch {
	return &domain.Batch{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		AccountID: accountID,
		Filename:  "statement.ofx",
		Format:    domain.FormatOFX,
		Status:    domain.BatchProcessing,
		CreatedAt: time.Now().UTC(),
	}
}

func newItem(batchID string, on civil.Date, amount string) *domain.Item {
	return &domain.Item{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		OccurredOn:  on,
		Description: "PADARIA",
		Amount:      decimal.RequireFromString(amount),
		Direction:   domain.DirectionOutflow,
		Status:      domain.ItemPending,
		Suggestion:  domain.ClassImportNew,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	applied, err := s.AppliedMigrations(ctx)
	require.NoError(t, err)
	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, applied, len(migrations))
	assert.Equal(t, migrations[0].Checksum, applied[0].Checksum)
}

func TestMigrationPattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"0001_init.sql", true},
		{"001_invalid.sql", false},
		{"0001_test", false},
		{"0001.sql", false},
		{"invalid_0001_test.sql", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.valid, migrationPattern.MatchString(tt.filename))
		})
	}
}

func TestAccountsAreOwnerScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, owner, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checking", got.Name)

	_, err = s.GetAccount(ctx, "someone-else", acc.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestFindCategoryByNameIgnoresCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCategory(ctx, domain.Category{OwnerID: owner, Name: "Groceries", Kind: domain.DirectionOutflow})
	require.NoError(t, err)

	c, err := s.FindCategoryByName(ctx, owner, "groceries")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", c.Name)

	_, err = s.FindCategoryByName(ctx, owner, "rent")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCandidatePoolExcludesLinkedTransactions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	free := seedTransaction(t, s, acc.ID, date(2024, 12, 20), "PADARIA", "89.90", domain.DirectionOutflow)
	linked := seedTransaction(t, s, acc.ID, date(2024, 12, 21), "MERCADO", "10.00", domain.DirectionOutflow)
	seedTransaction(t, s, acc.ID, date(2025, 2, 1), "LATER", "10.00", domain.DirectionOutflow)

	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))
	it := newItem(b.ID, date(2024, 12, 21), "10.00")
	it.TransactionID = &linked
	require.NoError(t, s.InsertItems(ctx, []*domain.Item{it}))

	pool, err := s.CandidatePool(ctx, owner, acc.ID, date(2024, 12, 1), date(2024, 12, 31))
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, free, pool[0].ID)
	assert.True(t, decimal.RequireFromString("89.90").Equal(pool[0].Amount))
}

func TestCategoryHistoryNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	cat, err := s.CreateCategory(ctx, domain.Category{OwnerID: owner, Name: "Food", Kind: domain.DirectionOutflow})
	require.NoError(t, err)

	for i, desc := range []string{"OLD", "NEW"} {
		_, err := s.CreateTransaction(ctx, domain.NewTransaction{
			OwnerID:     owner,
			AccountID:   acc.ID,
			OccurredOn:  date(2024, 12, 1+i),
			Description: desc,
			Amount:      decimal.NewFromInt(5),
			Direction:   domain.DirectionOutflow,
			CategoryID:  &cat.ID,
		})
		require.NoError(t, err)
	}
	seedTransaction(t, s, acc.ID, date(2024, 12, 5), "UNCATEGORIZED", "1", domain.DirectionOutflow)

	history, err := s.CategoryHistory(ctx, owner, domain.DirectionOutflow, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "UNCATEGORIZED", history[0].Description)
	assert.Nil(t, history[0].Category)
	assert.Equal(t, "NEW", history[1].Description)
	require.NotNil(t, history[1].Category)
	assert.Equal(t, "Food", history[1].Category.Name)
	assert.Equal(t, "OLD", history[2].Description)

	inflow, err := s.CategoryHistory(ctx, owner, domain.DirectionInflow, 10)
	require.NoError(t, err)
	assert.Empty(t, inflow)
}

func TestCategoryHistoryLimitCountsUncategorized(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	cat, err := s.CreateCategory(ctx, domain.Category{OwnerID: owner, Name: "Food", Kind: domain.DirectionOutflow})
	require.NoError(t, err)

	_, err = s.CreateTransaction(ctx, domain.NewTransaction{
		OwnerID:     owner,
		AccountID:   acc.ID,
		OccurredOn:  date(2024, 11, 1),
		Description: "PADARIA",
		Amount:      decimal.NewFromInt(5),
		Direction:   domain.DirectionOutflow,
		CategoryID:  &cat.ID,
	})
	require.NoError(t, err)
	seedTransaction(t, s, acc.ID, date(2024, 12, 1), "PADARIA", "5", domain.DirectionOutflow)
	seedTransaction(t, s, acc.ID, date(2024, 12, 2), "PADARIA", "5", domain.DirectionOutflow)

	history, err := s.CategoryHistory(ctx, owner, domain.DirectionOutflow, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, h := range history {
		assert.Nil(t, h.Category)
	}

	rec := domain.NewIngestedRecord(date(2024, 12, 3), "PADARIA", decimal.RequireFromString("-5"))
	assert.Nil(t, matching.SuggestFromHistory(rec, history))
}

func TestBatchRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))

	start, end := date(2024, 12, 5), date(2024, 12, 25)
	b.Status = domain.BatchPendingReview
	b.TotalRecords = 2
	b.StartDate, b.EndDate = &start, &end
	require.NoError(t, s.UpdateBatch(ctx, b))

	got, err := s.GetBatch(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchPendingReview, got.Status)
	assert.Equal(t, 2, got.TotalRecords)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, start, *got.StartDate)
	assert.Nil(t, got.CompletedAt)

	_, err = s.GetBatch(ctx, "someone-else", b.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	list, err := s.ListBatches(ctx, owner, ledger.BatchFilter{AccountID: acc.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListBatches(ctx, owner, ledger.BatchFilter{Status: domain.BatchCompleted})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestItemsKeepOrderAndCandidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	txID := seedTransaction(t, s, acc.ID, date(2024, 12, 20), "PADARIA", "89.90", domain.DirectionOutflow)
	tx, err := s.GetTransaction(ctx, owner, txID)
	require.NoError(t, err)

	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))

	first := newItem(b.ID, date(2024, 12, 25), "89.90")
	first.Score = 94
	first.Suggestion = domain.ClassAutoReconcile
	first.SuggestedTransactionID = &txID
	first.Candidates = []domain.MatchCandidate{{Transaction: *tx, Score: 94}}
	balance := decimal.RequireFromString("1234.56")
	first.BalanceAfter = &balance
	second := newItem(b.ID, date(2024, 12, 1), "5.00")
	require.NoError(t, s.InsertItems(ctx, []*domain.Item{first, second}))

	items, err := s.ListItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].ID)
	assert.Equal(t, second.ID, items[1].ID)
	require.Len(t, items[0].Candidates, 1)
	assert.Equal(t, txID, items[0].Candidates[0].Transaction.ID)
	assert.Equal(t, 94, items[0].Candidates[0].Score)
	require.NotNil(t, items[0].BalanceAfter)
	assert.True(t, balance.Equal(*items[0].BalanceAfter))
	assert.NotNil(t, items[1].Candidates)
	assert.Empty(t, items[1].Candidates)
}

func TestUpdateItemRejectsDoubleLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	txID := seedTransaction(t, s, acc.ID, date(2024, 12, 20), "PADARIA", "89.90", domain.DirectionOutflow)

	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))
	a, c := newItem(b.ID, date(2024, 12, 20), "89.90"), newItem(b.ID, date(2024, 12, 20), "89.90")
	require.NoError(t, s.InsertItems(ctx, []*domain.Item{a, c}))

	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		a.Status = domain.ItemMatched
		a.TransactionID = &txID
		if err := tx.UpdateItem(ctx, a); err != nil {
			return err
		}
		linked, err := tx.IsLinked(ctx, txID)
		require.NoError(t, err)
		assert.True(t, linked)

		c.Status = domain.ItemMatched
		c.TransactionID = &txID
		return tx.UpdateItem(ctx, c)
	})
	assert.ErrorIs(t, err, ledger.ErrAlreadyLinked)

	// The failed unit of work leaves nothing behind.
	items, err := s.ListItems(ctx, b.ID)
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, domain.ItemPending, it.Status)
		assert.Nil(t, it.TransactionID)
	}
}

func TestCountItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))
	ignored := newItem(b.ID, date(2024, 12, 1), "1")
	ignored.Status = domain.ItemIgnored
	require.NoError(t, s.InsertItems(ctx, []*domain.Item{
		newItem(b.ID, date(2024, 12, 1), "1"),
		newItem(b.ID, date(2024, 12, 2), "2"),
		ignored,
	}))

	require.NoError(t, s.WithTx(ctx, func(tx ledger.Tx) error {
		counts, err := tx.CountItems(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, counts[domain.ItemPending])
		assert.Equal(t, 1, counts[domain.ItemIgnored])
		assert.Equal(t, 0, counts[domain.ItemMatched])
		return nil
	}))
}

func TestDeleteBatchKeepsTransactions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, owner, "Checking")
	require.NoError(t, err)
	txID := seedTransaction(t, s, acc.ID, date(2024, 12, 20), "PADARIA", "89.90", domain.DirectionOutflow)

	b := newBatch(acc.ID)
	require.NoError(t, s.CreateBatch(ctx, b))
	it := newItem(b.ID, date(2024, 12, 20), "89.90")
	it.Status = domain.ItemMatched
	it.TransactionID = &txID
	require.NoError(t, s.InsertItems(ctx, []*domain.Item{it}))

	assert.ErrorIs(t, s.DeleteBatch(ctx, "someone-else", b.ID), ledger.ErrNotFound)
	require.NoError(t, s.DeleteBatch(ctx, owner, b.ID))

	_, err = s.GetBatch(ctx, owner, b.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	items, err := s.ListItems(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	tx, err := s.GetTransaction(ctx, owner, txID)
	require.NoError(t, err)
	assert.Equal(t, "PADARIA", tx.Description)

	// Once unlinked the transaction is a candidate again.
	pool, err := s.CandidatePool(ctx, owner, acc.ID, date(2024, 12, 1), date(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, pool, 1)

	assert.ErrorIs(t, s.DeleteBatch(ctx, owner, b.ID), ledger.ErrNotFound)
}

package matching_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/matching"
	mock_matching "github.com/dvloznov/statement-reconciler/internal/matching/mocks"
)

var march10 = civil.Date{Year: 2024, Month: 3, Day: 10}

func outflow(id string, on civil.Date, desc, amount string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		OccurredOn:  on,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Direction:   domain.DirectionOutflow,
	}
}

func record() domain.IngestedRecord {
	return domain.IngestedRecord{
		OccurredOn:  march10,
		Description: "Mercado Central",
		Amount:      decimal.RequireFromString("100"),
		Direction:   domain.DirectionOutflow,
	}
}

func TestRankCandidates(t *testing.T) {
	inflow := outflow("inflow", march10, "Mercado Central", "100")
	inflow.Direction = domain.DirectionInflow

	pool := []domain.Transaction{
		outflow("five-days", march10.AddDays(5), "Mercado Central", "100"),
		outflow("exact", march10, "Mercado Central", "100"),
		inflow,
		outflow("outside-window", march10.AddDays(8), "Mercado Central", "100"),
		outflow("weak", march10.AddDays(3), "Posto Shell", "500"),
	}

	got := matching.RankCandidates(record(), pool, matching.DefaultThreshold)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Transaction.ID)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, "five-days", got[1].Transaction.ID)
	assert.Equal(t, 80, got[1].Score)
}

func TestRankCandidates_ThresholdAndOrder(t *testing.T) {
	var pool []domain.Transaction
	for i := -7; i <= 7; i++ {
		for _, amount := range []string{"100", "90", "60", "10"} {
			pool = append(pool, outflow(strings.Repeat("t", i+8)+amount, march10.AddDays(i), "Mercado Central", amount))
		}
	}

	for _, threshold := range []int{0, 60, 75, 90, 101} {
		got := matching.RankCandidates(record(), pool, threshold)
		for i, c := range got {
			assert.GreaterOrEqual(t, c.Score, threshold)
			if i > 0 {
				assert.LessOrEqual(t, c.Score, got[i-1].Score, "results must be sorted descending")
			}
		}
	}
	assert.Empty(t, matching.RankCandidates(record(), pool, 101))
}

func TestRankCandidates_TieBreak(t *testing.T) {
	pool := []domain.Transaction{
		outflow("c", march10.AddDays(2), "Mercado Central", "100"),
		outflow("b", march10.AddDays(2), "Mercado Central", "100"),
		outflow("z", march10.AddDays(-2), "Mercado Central", "100"),
		outflow("far", march10.AddDays(3), "Mercado Central", "100"),
	}

	got := matching.RankCandidates(record(), pool, 0)
	require.Len(t, got, 4)

	ids := []string{got[0].Transaction.ID, got[1].Transaction.ID, got[2].Transaction.ID, got[3].Transaction.ID}
	assert.Equal(t, []string{"z", "b", "c", "far"}, ids)
}

func TestFinder_FindMatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mock_matching.NewMockCandidateSource(ctrl)
	finder := matching.NewFinder(source)

	t.Run("queries seven day window", func(t *testing.T) {
		source.EXPECT().
			CandidatePool(gomock.Any(), "owner-1", "acc-1", civil.Date{Year: 2024, Month: 3, Day: 3}, civil.Date{Year: 2024, Month: 3, Day: 17}).
			Return([]domain.Transaction{outflow("exact", march10, "Mercado Central", "100")}, nil)

		got, err := finder.FindMatches(ctx, record(), "acc-1", "owner-1", matching.DefaultThreshold)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "exact", got[0].Transaction.ID)
	})

	t.Run("empty pool is not an error", func(t *testing.T) {
		source.EXPECT().CandidatePool(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		got, err := finder.FindMatches(ctx, record(), "acc-1", "owner-1", matching.DefaultThreshold)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("db down")
		source.EXPECT().CandidatePool(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

		_, err := finder.FindMatches(ctx, record(), "acc-1", "owner-1", matching.DefaultThreshold)
		assert.ErrorIs(t, err, boom)
	})
}

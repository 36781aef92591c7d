// Package matching scores statement records against ledger transactions and
// suggests categories from a user's history.
package matching

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

const (
	AmountWeight      = 40.0
	DateWeight        = 30.0
	DescriptionWeight = 30.0
	MaxScore          = 100
)

// amountEpsilon is the difference below which two amounts are equal.
var amountEpsilon = decimal.RequireFromString("0.01")

// Breakdown holds the three weighted components of a score.
type Breakdown struct {
	Amount      float64 `json:"amount"`
	Date        float64 `json:"date"`
	Description float64 `json:"description"`
}

// Total floors the summed components and clamps the result to [0,100].
func (b Breakdown) Total() int {
	total := math.Floor(b.Amount + b.Date + b.Description)
	if total > MaxScore {
		return MaxScore
	}
	if total < 0 {
		return 0
	}
	return int(total)
}

// Score computes the 0-100 confidence that tx is the ledger entry for rec.
func Score(rec domain.IngestedRecord, tx domain.Transaction) int {
	return Explain(rec, tx).Total()
}

// Explain returns the per-component score of rec against tx.
func Explain(rec domain.IngestedRecord, tx domain.Transaction) Breakdown {
	return Breakdown{
		Amount:      AmountScore(rec.Amount, tx.Amount),
		Date:        DateScore(rec.OccurredOn, tx.OccurredOn),
		Description: DescriptionScore(rec.Description, tx.Description),
	}
}

// AmountScore awards full weight for equal amounts and decays linearly with
// the difference relative to the candidate amount. A zero candidate that is
// not equal to the record scores 0.
func AmountScore(recordAmount, candidateAmount decimal.Decimal) float64 {
	diff := recordAmount.Sub(candidateAmount).Abs()
	if diff.LessThan(amountEpsilon) {
		return AmountWeight
	}
	base := candidateAmount.Abs()
	if base.IsZero() {
		return 0
	}
	relative, _ := diff.Div(base).Float64()
	return math.Max(0, AmountWeight-relative*AmountWeight)
}

// DateScore uses discrete day bands.
func DateScore(a, b civil.Date) float64 {
	days := a.DaysSince(b)
	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		return 30
	case days <= 1:
		return 25
	case days <= 3:
		return 20
	case days <= 7:
		return 10
	default:
		return 0
	}
}

// DescriptionScore scales the token sort ratio to the description weight.
func DescriptionScore(a, b string) float64 {
	return float64(TokenSortRatio(a, b)) / 100 * DescriptionWeight
}

package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction is the inflow/outflow classification of a monetary movement.
type Direction string

const (
	// DirectionInflow is money coming into the account (credit).
	DirectionInflow Direction = "inflow"
	// DirectionOutflow is money leaving the account (debit).
	DirectionOutflow Direction = "outflow"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInflow || d == DirectionOutflow
}

// DirectionOf derives the direction from a signed amount. Zero counts as outflow.
func DirectionOf(signed decimal.Decimal) Direction {
	if signed.IsPositive() {
		return DirectionInflow
	}
	return DirectionOutflow
}

// IngestedRecord is one normalized line of an external statement.
// Amount is always the magnitude; the sign lives in Direction.
type IngestedRecord struct {
	OccurredOn        civil.Date       `json:"occurred_on"`
	Description       string           `json:"description"`
	Amount            decimal.Decimal  `json:"amount"`
	Direction         Direction        `json:"direction"`
	ExternalReference string           `json:"external_reference,omitempty"`
	BalanceAfter      *decimal.Decimal `json:"balance_after,omitempty"`
}

// NewIngestedRecord builds a record from a signed source amount.
func NewIngestedRecord(on civil.Date, description string, signed decimal.Decimal) IngestedRecord {
	return IngestedRecord{
		OccurredOn:  on,
		Description: description,
		Amount:      signed.Abs(),
		Direction:   DirectionOf(signed),
	}
}

// SignedAmount reconstructs the signed amount from Amount and Direction.
func (r IngestedRecord) SignedAmount() decimal.Decimal {
	if r.Direction == DirectionOutflow {
		return r.Amount.Neg()
	}
	return r.Amount
}

// DateRange is the inclusive span of record dates. Both ends are nil when empty.
type DateRange struct {
	Start *civil.Date `json:"start"`
	End   *civil.Date `json:"end"`
}

// RangeOf computes the date range spanned by records.
func RangeOf(records []IngestedRecord) DateRange {
	var dr DateRange
	for i := range records {
		d := records[i].OccurredOn
		if dr.Start == nil || d.Before(*dr.Start) {
			start := d
			dr.Start = &start
		}
		if dr.End == nil || d.After(*dr.End) {
			end := d
			dr.End = &end
		}
	}
	return dr
}

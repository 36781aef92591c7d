package matching

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

const (
	// DefaultThreshold is the minimum score a candidate needs to be returned.
	DefaultThreshold = 60
	// WindowDays bounds the candidate pool around the record date.
	WindowDays = 7
)

// Window returns the inclusive date window searched for a record date.
func Window(on civil.Date) (from, to civil.Date) {
	return on.AddDays(-WindowDays), on.AddDays(WindowDays)
}

// RankCandidates scores every transaction in pool against rec and returns
// those at or above threshold, best first. Transactions outside the date
// window or with the opposite direction are skipped, so a pool loaded once
// for a whole batch can be reused for every record.
//
// Equal scores are ordered by date distance, then earlier date, then ID.
func RankCandidates(rec domain.IngestedRecord, pool []domain.Transaction, threshold int) []domain.MatchCandidate {
	from, to := Window(rec.OccurredOn)

	matches := make([]domain.MatchCandidate, 0)
	for _, tx := range pool {
		if tx.Direction != rec.Direction {
			continue
		}
		if tx.OccurredOn.Before(from) || tx.OccurredOn.After(to) {
			continue
		}
		score := Score(rec, tx)
		if score < threshold {
			continue
		}
		matches = append(matches, domain.MatchCandidate{Transaction: tx, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da, db := dayDistance(rec.OccurredOn, a.Transaction.OccurredOn), dayDistance(rec.OccurredOn, b.Transaction.OccurredOn)
		if da != db {
			return da < db
		}
		if a.Transaction.OccurredOn != b.Transaction.OccurredOn {
			return a.Transaction.OccurredOn.Before(b.Transaction.OccurredOn)
		}
		return a.Transaction.ID < b.Transaction.ID
	})

	return matches
}

func dayDistance(a, b civil.Date) int {
	d := a.DaysSince(b)
	if d < 0 {
		return -d
	}
	return d
}

// Finder looks up candidates from a CandidateSource for single records.
type Finder struct {
	source CandidateSource
}

// NewFinder creates a Finder.
func NewFinder(source CandidateSource) *Finder {
	return &Finder{source: source}
}

// FindMatches returns ranked candidates for rec on the given account. No
// match yields an empty slice, not an error.
func (f *Finder) FindMatches(ctx context.Context, rec domain.IngestedRecord, accountID, ownerID string, threshold int) ([]domain.MatchCandidate, error) {
	from, to := Window(rec.OccurredOn)
	pool, err := f.source.CandidatePool(ctx, ownerID, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("FindMatches: loading candidate pool: %w", err)
	}
	return RankCandidates(rec, pool, threshold), nil
}

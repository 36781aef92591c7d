package matching

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

const (
	// HistoryLimit caps how many past transactions are compared.
	HistoryLimit = 1000
	// CategoryThreshold is the minimum mean similarity for a suggestion.
	CategoryThreshold = 70.0
)

// CategorizedEntry is a past transaction and the category assigned to it.
type CategorizedEntry struct {
	Description string
	Category    *domain.Category
}

// SuggestFromHistory returns the category whose history entries are on
// average most similar to rec, or nil when no category reaches
// CategoryThreshold. Only the first HistoryLimit entries are considered and
// entries without a category are ignored. On equal means the category seen
// first in history wins.
func SuggestFromHistory(rec domain.IngestedRecord, history []CategorizedEntry) *domain.Category {
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}

	type tally struct {
		category *domain.Category
		sum      int
		count    int
	}
	var (
		order  []string
		totals = make(map[string]*tally)
	)
	for _, h := range history {
		if h.Category == nil || h.Category.ID == "" {
			continue
		}
		t, ok := totals[h.Category.ID]
		if !ok {
			t = &tally{category: h.Category}
			totals[h.Category.ID] = t
			order = append(order, h.Category.ID)
		}
		t.sum += TokenSortRatio(rec.Description, h.Description)
		t.count++
	}

	var (
		best     *domain.Category
		bestMean float64
	)
	for _, id := range order {
		t := totals[id]
		mean := float64(t.sum) / float64(t.count)
		if mean > bestMean && mean >= CategoryThreshold {
			best, bestMean = t.category, mean
		}
	}
	return best
}

// Suggester suggests categories from a HistorySource.
type Suggester struct {
	source HistorySource
}

// NewSuggester creates a Suggester.
func NewSuggester(source HistorySource) *Suggester {
	return &Suggester{source: source}
}

// SuggestCategory loads the owner's history for the record direction and
// applies SuggestFromHistory.
func (s *Suggester) SuggestCategory(ctx context.Context, rec domain.IngestedRecord, ownerID string) (*domain.Category, error) {
	history, err := s.source.CategoryHistory(ctx, ownerID, rec.Direction, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("SuggestCategory: loading history: %w", err)
	}
	return SuggestFromHistory(rec, history), nil
}

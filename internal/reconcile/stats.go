package reconcile

import "github.com/dvloznov/statement-reconciler/internal/domain"

// Stats summarizes how well a batch matched the ledger.
type Stats struct {
	Total     int     `json:"total"`
	Strong    int     `json:"strong"`
	Medium    int     `json:"medium"`
	None      int     `json:"none"`
	StrongPct float64 `json:"strong_pct"`
	MediumPct float64 `json:"medium_pct"`
	NonePct   float64 `json:"none_pct"`
}

// ComputeStats buckets items by best score: strong from AutoReconcileScore,
// medium from ReviewScore, none below.
func ComputeStats(items []*domain.Item) Stats {
	s := Stats{Total: len(items)}
	for _, it := range items {
		switch {
		case it.Score >= domain.AutoReconcileScore:
			s.Strong++
		case it.Score >= domain.ReviewScore:
			s.Medium++
		default:
			s.None++
		}
	}
	if s.Total > 0 {
		total := float64(s.Total)
		s.StrongPct = float64(s.Strong) / total * 100
		s.MediumPct = float64(s.Medium) / total * 100
		s.NonePct = float64(s.None) / total * 100
	}
	return s
}

package reconcile

//go:generate mockgen -destination=mocks/mock_interfaces.go -source=interfaces.go

import (
	"context"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// Archiver keeps a copy of the raw statement file and returns its location.
type Archiver interface {
	Archive(ctx context.Context, ownerID, batchID, filename string, data []byte) (string, error)
}

// Exporter publishes a completed batch to the reporting store.
type Exporter interface {
	ExportBatch(ctx context.Context, batch *domain.Batch, items []*domain.Item) error
}

// CategoryFallback is asked for a category when history gives no confident
// suggestion. It must only return one of the given categories, or nil.
type CategoryFallback interface {
	SuggestCategory(ctx context.Context, rec domain.IngestedRecord, categories []domain.Category) (*domain.Category, error)
}

// Fetcher reads a stored statement file by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, maxBytes int64) ([]byte, error)
}

// Package reconcile drives statement ingestion, match scoring and the
// application of reviewed decisions against the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
)

const (
	DefaultCacheTTL      = 5 * time.Minute
	cacheCleanupInterval = 10 * time.Minute
)

// Options configures an Orchestrator. Nil collaborators are skipped.
type Options struct {
	Threshold int
	Archiver  Archiver
	Exporter  Exporter
	Fallback  CategoryFallback
	CacheTTL  time.Duration
	Now       func() time.Time
}

// Orchestrator owns the batch lifecycle.
type Orchestrator struct {
	store     ledger.Store
	finder    *matching.Finder
	suggester *matching.Suggester
	opts      Options
	views     *cache.Cache
}

// New creates an Orchestrator over store.
func New(store ledger.Store, opts Options) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = matching.DefaultThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:     store,
		finder:    matching.NewFinder(store),
		suggester: matching.NewSuggester(store),
		opts:      opts,
		views:     cache.New(opts.CacheTTL, cacheCleanupInterval),
	}
}

// BatchView is the review read model of a batch.
type BatchView struct {
	Batch *domain.Batch  `json:"batch"`
	Items []*domain.Item `json:"items"`
	Stats Stats          `json:"stats"`
}

// ApplyResult reports what ApplyDecisions changed.
type ApplyResult struct {
	Batch    *domain.Batch `json:"batch"`
	Matched  int           `json:"matched"`
	Imported int           `json:"imported"`
	Ignored  int           `json:"ignored"`
	// Skipped lists decision item ids that were unknown or already processed.
	Skipped []string `json:"skipped"`
}

func (o *Orchestrator) ingestPipeline() *Pipeline {
	return NewPipeline(
		&CheckAccountStep{accounts: o.store},
		&ParseStatementStep{batches: o.store, now: o.opts.Now},
		&CreateBatchStep{batches: o.store, now: o.opts.Now},
		&ArchiveStep{archiver: o.opts.Archiver},
		&LoadContextStep{ledger: o.store, loadCategory: o.opts.Fallback != nil},
		&ScoreRecordsStep{threshold: o.opts.Threshold},
		&SuggestCategoriesStep{fallback: o.opts.Fallback},
		&PersistItemsStep{batches: o.store},
		&MarkPendingReviewStep{batches: o.store},
	)
}

// Ingest parses a statement and stores one item per record for review.
//
// Unsupported formats, unknown accounts and empty statements create no
// batch. Any failure once a batch exists leaves it failed; the failed batch
// is returned together with the error.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (*BatchView, error) {
	log := logger.FromContext(ctx).With().
		Str("owner_id", req.OwnerID).
		Str("account_id", req.AccountID).
		Str("filename", req.Filename).
		Logger()
	ctx = logger.WithContext(ctx, log)

	state := &IngestState{Request: req}
	if err := o.ingestPipeline().Execute(ctx, state); err != nil {
		if state.Batch == nil {
			return nil, fmt.Errorf("Ingest: %w", err)
		}
		o.markFailed(ctx, state.Batch, err)
		return &BatchView{Batch: state.Batch, Items: []*domain.Item{}}, fmt.Errorf("Ingest: batch %s: %w", state.Batch.ID, err)
	}

	log.Info().
		Str("batch_id", state.Batch.ID).
		Int("items", len(state.Items)).
		Msg("Statement ready for review")
	return &BatchView{Batch: state.Batch, Items: state.Items, Stats: ComputeStats(state.Items)}, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, b *domain.Batch, cause error) {
	log := logger.FromContext(ctx)
	if err := transition(b, domain.BatchFailed); err != nil {
		log.Error().Err(err).Str("batch_id", b.ID).Msg("Cannot mark batch failed")
		return
	}
	b.FailureReason = cause.Error()
	if err := o.store.UpdateBatch(ctx, b); err != nil {
		log.Error().Err(err).Str("batch_id", b.ID).Msg("Failed to persist batch failure")
		return
	}
	log.Warn().Err(cause).Str("batch_id", b.ID).Msg("Reconciliation batch failed")
}

// ApplyDecisions applies reviewed decisions and completes the batch. All
// changes commit together or not at all. Decisions for unknown or already
// processed items are skipped.
func (o *Orchestrator) ApplyDecisions(ctx context.Context, ownerID, batchID string, decisions []domain.Decision) (*ApplyResult, error) {
	log := logger.FromContext(ctx).With().Str("owner_id", ownerID).Str("batch_id", batchID).Logger()

	result := &ApplyResult{Skipped: []string{}}
	err := o.store.WithTx(ctx, func(tx ledger.Tx) error {
		batch, err := tx.GetBatch(ctx, ownerID, batchID)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		if err != nil {
			return err
		}
		if err := transition(batch, domain.BatchCompleted); err != nil {
			return err
		}

		now := o.opts.Now().UTC()
		for _, d := range decisions {
			item, err := tx.GetItem(ctx, batch.ID, d.ItemID())
			if errors.Is(err, ledger.ErrNotFound) {
				result.Skipped = append(result.Skipped, d.ItemID())
				continue
			}
			if err != nil {
				return err
			}
			if item.Status != domain.ItemPending {
				result.Skipped = append(result.Skipped, d.ItemID())
				continue
			}

			switch d := d.(type) {
			case domain.ReconcileDecision:
				err = o.applyReconcile(ctx, tx, batch, item, d)
			case domain.ImportDecision:
				err = o.applyImport(ctx, tx, batch, item, d)
			case domain.IgnoreDecision:
				item.Status = domain.ItemIgnored
			default:
				err = fmt.Errorf("%w: unsupported decision %T", ErrInvalidDecision, d)
			}
			if err != nil {
				return fmt.Errorf("item %s: %w", item.ID, err)
			}

			item.ProcessedAt = &now
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}

		counts, err := tx.CountItems(ctx, batch.ID)
		if err != nil {
			return err
		}
		batch.MatchedCount = counts[domain.ItemMatched]
		batch.ImportedCount = counts[domain.ItemImported]
		batch.IgnoredCount = counts[domain.ItemIgnored]
		batch.CompletedAt = &now
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return err
		}

		result.Batch = batch
		result.Matched = batch.MatchedCount
		result.Imported = batch.ImportedCount
		result.Ignored = batch.IgnoredCount
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Decisions rolled back")
		return nil, fmt.Errorf("ApplyDecisions: %w", err)
	}

	o.invalidate(ownerID, batchID)
	log.Info().
		Int("matched", result.Matched).
		Int("imported", result.Imported).
		Int("ignored", result.Ignored).
		Int("skipped", len(result.Skipped)).
		Msg("Reconciliation batch completed")

	o.export(ctx, result.Batch)
	return result, nil
}

func (o *Orchestrator) applyReconcile(ctx context.Context, tx ledger.Tx, batch *domain.Batch, item *domain.Item, d domain.ReconcileDecision) error {
	target := d.TargetTransactionID
	if target == nil {
		target = item.SuggestedTransactionID
	}
	if target == nil {
		return fmt.Errorf("%w: reconcile without a target transaction", ErrInvalidDecision)
	}

	txn, err := tx.GetTransaction(ctx, batch.OwnerID, *target)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: transaction %s not found", ErrInvalidDecision, *target)
	}
	if err != nil {
		return err
	}
	if txn.AccountID != batch.AccountID {
		return fmt.Errorf("%w: transaction %s belongs to another account", ErrInvalidDecision, txn.ID)
	}
	if txn.Direction != item.Direction {
		return fmt.Errorf("%w: transaction %s is an %s, item is an %s", ErrInvalidDecision, txn.ID, txn.Direction, item.Direction)
	}

	linked, err := tx.IsLinked(ctx, txn.ID)
	if err != nil {
		return err
	}
	if linked {
		return fmt.Errorf("%w: %s", ErrAlreadyLinked, txn.ID)
	}

	item.Status = domain.ItemMatched
	item.TransactionID = &txn.ID
	return nil
}

func (o *Orchestrator) applyImport(ctx context.Context, tx ledger.Tx, batch *domain.Batch, item *domain.Item, d domain.ImportDecision) error {
	categoryID := d.CategoryID
	if categoryID == nil {
		categoryID = item.SuggestedCategoryID
	}
	if categoryID != nil {
		if _, err := tx.GetCategory(ctx, batch.OwnerID, *categoryID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("%w: category %s not found", ErrInvalidDecision, *categoryID)
			}
			return err
		}
	}

	id, err := tx.CreateTransaction(ctx, domain.NewTransaction{
		OwnerID:     batch.OwnerID,
		AccountID:   batch.AccountID,
		OccurredOn:  item.OccurredOn,
		Description: item.Description,
		Amount:      item.Amount,
		Direction:   item.Direction,
		CategoryID:  categoryID,
	})
	if err != nil {
		return err
	}

	item.Status = domain.ItemImported
	item.TransactionID = &id
	item.SuggestedCategoryID = categoryID
	return nil
}

// export is best effort: the batch is already committed.
func (o *Orchestrator) export(ctx context.Context, batch *domain.Batch) {
	if o.opts.Exporter == nil || batch == nil {
		return
	}
	log := logger.FromContext(ctx)
	items, err := o.store.ListItems(ctx, batch.ID)
	if err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to load items for export")
		return
	}
	if err := o.opts.Exporter.ExportBatch(ctx, batch, items); err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID).Msg("Failed to export batch")
	}
}

// GetBatch returns the review read model. Views are cached until the batch
// changes.
func (o *Orchestrator) GetBatch(ctx context.Context, ownerID, batchID string) (*BatchView, error) {
	key := cacheKey(ownerID, batchID)
	if cached, found := o.views.Get(key); found {
		return cached.(*BatchView), nil
	}

	batch, err := o.store.GetBatch(ctx, ownerID, batchID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("GetBatch: %w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	items, err := o.store.ListItems(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}

	view := &BatchView{Batch: batch, Items: items, Stats: ComputeStats(items)}
	// Processing batches are still changing underneath.
	if batch.Status != domain.BatchProcessing {
		o.views.Set(key, view, cache.DefaultExpiration)
	}
	return view, nil
}

// ListBatches returns the owner's batches, newest first.
func (o *Orchestrator) ListBatches(ctx context.Context, ownerID string, filter ledger.BatchFilter) ([]*domain.Batch, error) {
	batches, err := o.store.ListBatches(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a batch and its items. Ledger transactions are kept.
func (o *Orchestrator) DeleteBatch(ctx context.Context, ownerID, batchID string) error {
	err := o.store.DeleteBatch(ctx, ownerID, batchID)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("DeleteBatch: %w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}
	o.invalidate(ownerID, batchID)
	log := logger.FromContext(ctx)
	log.Info().Str("owner_id", ownerID).Str("batch_id", batchID).Msg("Deleted reconciliation batch")
	return nil
}

// Candidates re-runs the match finder for one item against the current
// ledger, e.g. after other items were reconciled.
func (o *Orchestrator) Candidates(ctx context.Context, ownerID, batchID, itemID string) ([]domain.MatchCandidate, error) {
	batch, item, err := o.findItem(ctx, ownerID, batchID, itemID)
	if err != nil {
		return nil, fmt.Errorf("Candidates: %w", err)
	}
	matches, err := o.finder.FindMatches(ctx, item.Record(), batch.AccountID, ownerID, o.opts.Threshold)
	if err != nil {
		return nil, fmt.Errorf("Candidates: %w", err)
	}
	return matches, nil
}

// SuggestCategory re-runs the history heuristic for one item against the
// owner's current ledger. A nil category means no confident suggestion.
func (o *Orchestrator) SuggestCategory(ctx context.Context, ownerID, batchID, itemID string) (*domain.Category, error) {
	_, item, err := o.findItem(ctx, ownerID, batchID, itemID)
	if err != nil {
		return nil, fmt.Errorf("SuggestCategory: %w", err)
	}
	category, err := o.suggester.SuggestCategory(ctx, item.Record(), ownerID)
	if err != nil {
		return nil, fmt.Errorf("SuggestCategory: %w", err)
	}
	return category, nil
}

func (o *Orchestrator) findItem(ctx context.Context, ownerID, batchID, itemID string) (*domain.Batch, *domain.Item, error) {
	view, err := o.GetBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range view.Items {
		if it.ID == itemID {
			return view.Batch, it, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: item %s", ledger.ErrNotFound, itemID)
}

func (o *Orchestrator) invalidate(ownerID, batchID string) {
	o.views.Delete(cacheKey(ownerID, batchID))
}

func cacheKey(ownerID, batchID string) string {
	return fmt.Sprintf("batch:%s:%s", ownerID, batchID)
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/matching"
	"github.com/dvloznov/statement-reconciler/internal/statement"
)

// maxCandidates is how many ranked candidates an item keeps for review.
const maxCandidates = 5

// IngestRequest is one uploaded statement file.
type IngestRequest struct {
	Data      []byte
	Filename  string
	AccountID string
	OwnerID   string
	// Format overrides detection when set.
	Format domain.Format
	CSV    statement.CSVOptions
}

// IngestStep is a single step of the ingest pipeline.
type IngestStep interface {
	Execute(ctx context.Context, state *IngestState) error
}

// IngestState is shared by all steps of one ingest run.
type IngestState struct {
	Request IngestRequest
	Format  domain.Format
	Result  *statement.Result
	Batch   *domain.Batch

	// Loaded once per batch and reused for every record.
	Pool       []domain.Transaction
	History    map[domain.Direction][]matching.CategorizedEntry
	Categories []domain.Category

	Items []*domain.Item
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []IngestStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...IngestStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *IngestState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("ingest step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// CheckAccountStep rejects accounts the owner cannot see.
type CheckAccountStep struct {
	accounts ledger.Transactions
}

func (s *CheckAccountStep) Execute(ctx context.Context, state *IngestState) error {
	_, err := s.accounts.GetAccount(ctx, state.Request.OwnerID, state.Request.AccountID)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, state.Request.AccountID)
	}
	return err
}

// ParseStatementStep resolves the format and parses the file. Unsupported
// formats create no batch. An unreadable file is still recorded as a batch so
// the failure is visible in the history.
type ParseStatementStep struct {
	batches ledger.Batches
	now     func() time.Time
}

func (s *ParseStatementStep) Execute(ctx context.Context, state *IngestState) error {
	res, format, err := statement.ParseFile(state.Request.Data, state.Request.Format, state.Request.CSV)
	if errors.Is(err, ErrUnsupportedFormat) {
		return fmt.Errorf("%s: %w", state.Request.Filename, err)
	}
	state.Format = format
	if err != nil {
		state.Batch = newBatch(state, s.now())
		if cerr := s.batches.CreateBatch(ctx, state.Batch); cerr != nil {
			state.Batch = nil
			return errors.Join(err, cerr)
		}
		return err
	}
	if len(res.Records) == 0 {
		return ErrNothingToReconcile
	}
	state.Result = res
	return nil
}

// CreateBatchStep persists the batch in processing.
type CreateBatchStep struct {
	batches ledger.Batches
	now     func() time.Time
}

func (s *CreateBatchStep) Execute(ctx context.Context, state *IngestState) error {
	b := newBatch(state, s.now())
	b.TotalRecords = len(state.Result.Records)
	b.StartDate = state.Result.DateRange.Start
	b.EndDate = state.Result.DateRange.End
	if err := s.batches.CreateBatch(ctx, b); err != nil {
		return err
	}
	state.Batch = b
	log := logger.FromContext(ctx)
	log.Info().
		Str("batch_id", b.ID).
		Str("format", string(b.Format)).
		Int("records", b.TotalRecords).
		Msg("Created reconciliation batch")
	return nil
}

func newBatch(state *IngestState, now time.Time) *domain.Batch {
	return &domain.Batch{
		ID:        uuid.NewString(),
		OwnerID:   state.Request.OwnerID,
		AccountID: state.Request.AccountID,
		Filename:  state.Request.Filename,
		Format:    state.Format,
		Status:    domain.BatchProcessing,
		CreatedAt: now.UTC(),
	}
}

// ArchiveStep stores the raw file. Archiving is best effort: a failed
// upload is logged and the batch continues without an ArchiveURI.
type ArchiveStep struct {
	archiver Archiver
}

func (s *ArchiveStep) Execute(ctx context.Context, state *IngestState) error {
	if s.archiver == nil {
		return nil
	}
	uri, err := s.archiver.Archive(ctx, state.Batch.OwnerID, state.Batch.ID, state.Batch.Filename, state.Request.Data)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("batch_id", state.Batch.ID).Msg("Failed to archive statement")
		return nil
	}
	state.Batch.ArchiveURI = uri
	return nil
}

// LoadContextStep materializes the candidate pool and the category history
// once for the whole batch.
type LoadContextStep struct {
	ledger       ledger.Transactions
	loadCategory bool
}

func (s *LoadContextStep) Execute(ctx context.Context, state *IngestState) error {
	if from, to, ok := ledger.PoolWindow(state.Result.DateRange); ok {
		pool, err := s.ledger.CandidatePool(ctx, state.Batch.OwnerID, state.Batch.AccountID, from, to)
		if err != nil {
			return fmt.Errorf("loading candidate pool: %w", err)
		}
		state.Pool = pool
	}

	state.History = make(map[domain.Direction][]matching.CategorizedEntry)
	for _, rec := range state.Result.Records {
		if _, ok := state.History[rec.Direction]; ok {
			continue
		}
		history, err := s.ledger.CategoryHistory(ctx, state.Batch.OwnerID, rec.Direction, matching.HistoryLimit)
		if err != nil {
			return fmt.Errorf("loading %s category history: %w", rec.Direction, err)
		}
		state.History[rec.Direction] = history
	}

	if s.loadCategory {
		categories, err := s.ledger.ListCategories(ctx, state.Batch.OwnerID)
		if err != nil {
			return fmt.Errorf("loading categories: %w", err)
		}
		state.Categories = categories
	}
	return nil
}

// ScoreRecordsStep ranks the pool for every record and classifies it. A
// transaction proposed as the best match of one item is not proposed again
// for a later item of the same batch; it stays in that item's candidates.
type ScoreRecordsStep struct {
	threshold int
}

func (s *ScoreRecordsStep) Execute(ctx context.Context, state *IngestState) error {
	items := make([]*domain.Item, 0, len(state.Result.Records))
	proposed := make(map[string]bool)
	for _, rec := range state.Result.Records {
		ranked := matching.RankCandidates(rec, state.Pool, s.threshold)

		it := &domain.Item{
			ID:                uuid.NewString(),
			BatchID:           state.Batch.ID,
			OccurredOn:        rec.OccurredOn,
			Description:       rec.Description,
			Amount:            rec.Amount,
			Direction:         rec.Direction,
			ExternalReference: rec.ExternalReference,
			BalanceAfter:      rec.BalanceAfter,
			Status:            domain.ItemPending,
		}
		for _, c := range ranked {
			if proposed[c.Transaction.ID] {
				continue
			}
			id := c.Transaction.ID
			it.Score = c.Score
			it.SuggestedTransactionID = &id
			proposed[id] = true
			break
		}
		if len(ranked) > maxCandidates {
			ranked = ranked[:maxCandidates]
		}
		if len(ranked) > 0 {
			it.Candidates = ranked
		}
		it.Suggestion = domain.Classify(it.Score, it.SuggestedTransactionID != nil)
		items = append(items, it)
	}
	state.Items = items
	return nil
}

// SuggestCategoriesStep fills the suggested category of every item.
type SuggestCategoriesStep struct {
	fallback CategoryFallback
}

func (s *SuggestCategoriesStep) Execute(ctx context.Context, state *IngestState) error {
	log := logger.FromContext(ctx)
	for _, it := range state.Items {
		rec := it.Record()
		category := matching.SuggestFromHistory(rec, state.History[rec.Direction])
		if category == nil && s.fallback != nil && len(state.Categories) > 0 {
			var err error
			category, err = s.fallback.SuggestCategory(ctx, rec, sameKind(state.Categories, rec.Direction))
			if err != nil {
				log.Warn().Err(err).Str("item_id", it.ID).Msg("Category fallback failed")
				category = nil
			}
		}
		if category != nil {
			id := category.ID
			it.SuggestedCategoryID = &id
		}
	}
	return nil
}

func sameKind(categories []domain.Category, d domain.Direction) []domain.Category {
	var out []domain.Category
	for _, c := range categories {
		if c.Kind == d {
			out = append(out, c)
		}
	}
	return out
}

// PersistItemsStep writes all items of the batch.
type PersistItemsStep struct {
	batches ledger.Batches
}

func (s *PersistItemsStep) Execute(ctx context.Context, state *IngestState) error {
	return s.batches.InsertItems(ctx, state.Items)
}

// MarkPendingReviewStep hands the batch over to human review.
type MarkPendingReviewStep struct {
	batches ledger.Batches
}

func (s *MarkPendingReviewStep) Execute(ctx context.Context, state *IngestState) error {
	next := *state.Batch
	if err := transition(&next, domain.BatchPendingReview); err != nil {
		return err
	}
	if err := s.batches.UpdateBatch(ctx, &next); err != nil {
		return err
	}
	*state.Batch = next
	return nil
}

func transition(b *domain.Batch, to domain.BatchStatus) error {
	if b.Status.Terminal() {
		return fmt.Errorf("%w: batch %s is %s", ErrBatchTerminal, b.ID, b.Status)
	}
	if !domain.CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return nil
}

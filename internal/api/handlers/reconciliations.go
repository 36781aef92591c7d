package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/gcsuploader"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
	"github.com/dvloznov/statement-reconciler/internal/statement"
)

// multipartOverhead covers form fields and boundaries on top of the file.
const multipartOverhead = 1 << 20

// allowedExtensions lists the upload file extensions accepted by Upload.
var allowedExtensions = map[string]bool{
	".ofx": true,
	".qfx": true,
	".csv": true,
	".txt": true,
}

// Reconciler is the orchestrator surface used by the handlers.
type Reconciler interface {
	Ingest(ctx context.Context, req reconcile.IngestRequest) (*reconcile.BatchView, error)
	GetBatch(ctx context.Context, ownerID, batchID string) (*reconcile.BatchView, error)
	ListBatches(ctx context.Context, ownerID string, filter ledger.BatchFilter) ([]*domain.Batch, error)
	DeleteBatch(ctx context.Context, ownerID, batchID string) error
	ApplyDecisions(ctx context.Context, ownerID, batchID string, decisions []domain.Decision) (*reconcile.ApplyResult, error)
	Candidates(ctx context.Context, ownerID, batchID, itemID string) ([]domain.MatchCandidate, error)
	SuggestCategory(ctx context.Context, ownerID, batchID, itemID string) (*domain.Category, error)
}

// ReconciliationsHandler serves /api/reconciliations.
type ReconciliationsHandler struct {
	reconciler Reconciler
	publisher  jobs.Publisher
	maxBytes   int64
}

// NewReconciliationsHandler creates the handler. A nil publisher disables
// import from GCS.
func NewReconciliationsHandler(r Reconciler, publisher jobs.Publisher, maxBytes int64) *ReconciliationsHandler {
	return &ReconciliationsHandler{reconciler: r, publisher: publisher, maxBytes: maxBytes}
}

// Register adds the reconciliation routes to mux.
func (h *ReconciliationsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reconciliations", h.Upload)
	mux.HandleFunc("POST /api/reconciliations/import-gcs", h.ImportFromGCS)
	mux.HandleFunc("GET /api/reconciliations", h.List)
	mux.HandleFunc("GET /api/reconciliations/{id}", h.Get)
	mux.HandleFunc("DELETE /api/reconciliations/{id}", h.Delete)
	mux.HandleFunc("POST /api/reconciliations/{id}/decisions", h.ApplyDecisions)
	mux.HandleFunc("GET /api/reconciliations/{id}/items/{item}/candidates", h.Candidates)
	mux.HandleFunc("GET /api/reconciliations/{id}/items/{item}/category", h.Category)
}

// Upload handles POST /api/reconciliations with a multipart statement file.
func (h *ReconciliationsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		middleware.WriteErrorReason(w, http.StatusUnsupportedMediaType, "File extension is not allowed", "unsupported_format")
		return
	}

	accountID := r.FormValue("account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	format, err := statement.ParseFormat(r.FormValue("format"))
	if err != nil {
		writeDomainError(w, r, err, "Rejected statement format")
		return
	}
	csvOpts, err := csvOptionsFromForm(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if int64(len(data)) > h.maxBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File is too large")
		return
	}

	view, err := h.reconciler.Ingest(r.Context(), reconcile.IngestRequest{
		Data:      data,
		Filename:  filename,
		AccountID: accountID,
		OwnerID:   owner,
		Format:    format,
		CSV:       csvOpts,
	})
	if err != nil {
		status, message, reason := statusFor(err)
		if view != nil && view.Batch != nil {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Str("batch_id", view.Batch.ID).Msg("Statement ingest failed")
			middleware.WriteJSON(w, status, map[string]interface{}{
				"error":  message,
				"reason": reason,
				"batch":  view.Batch,
			})
			return
		}
		writeDomainError(w, r, err, "Statement ingest failed")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, view)
}

// csvOptionsFromForm reads optional CSV layout fields.
func csvOptionsFromForm(r *http.Request) (statement.CSVOptions, error) {
	opts := statement.CSVOptions{
		Delimiter:         r.FormValue("delimiter"),
		DateColumn:        r.FormValue("date_column"),
		DescriptionColumn: r.FormValue("description_column"),
		AmountColumn:      r.FormValue("amount_column"),
		DateFormat:        r.FormValue("date_format"),
		Encoding:          r.FormValue("encoding"),
	}
	if raw := r.FormValue("has_header"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("has_header must be a boolean")
		}
		opts.HasHeader = &v
	}
	return opts, nil
}

// ImportFromGCS handles POST /api/reconciliations/import-gcs by queueing an
// ingest job for a statement already in the bucket.
func (h *ReconciliationsHandler) ImportFromGCS(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "GCS import is not configured")
		return
	}

	var req struct {
		GCSURI    string `json:"gcs_uri"`
		AccountID string `json:"account_id"`
		Format    string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.GCSURI == "" || req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri and account_id are required")
		return
	}
	if _, _, err := gcsuploader.ParseURI(req.GCSURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := statement.ParseFormat(req.Format); err != nil {
		writeDomainError(w, r, err, "Rejected statement format")
		return
	}

	job := &jobs.IngestStatementJob{
		GCSURI:    req.GCSURI,
		OwnerID:   middleware.OwnerFromContext(r.Context()),
		AccountID: req.AccountID,
		Format:    req.Format,
	}
	if err := h.publisher.PublishIngestStatement(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue ingest job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingest job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("gcs_uri", job.GCSURI).Msg("Ingest job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// List handles GET /api/reconciliations.
func (h *ReconciliationsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ledger.BatchFilter{
		AccountID: query.Get("account_id"),
		Status:    domain.BatchStatus(query.Get("status")),
		Limit:     intParam(query.Get("limit")),
		Offset:    intParam(query.Get("offset")),
	}

	batches, err := h.reconciler.ListBatches(r.Context(), middleware.OwnerFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err, "Failed to list batches")
		return
	}
	if batches == nil {
		batches = []*domain.Batch{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// Get handles GET /api/reconciliations/{id}.
func (h *ReconciliationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.reconciler.GetBatch(r.Context(), middleware.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err, "Failed to get batch")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// Delete handles DELETE /api/reconciliations/{id}.
func (h *ReconciliationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.DeleteBatch(r.Context(), middleware.OwnerFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err, "Failed to delete batch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDecisions handles POST /api/reconciliations/{id}/decisions.
func (h *ReconciliationsHandler) ApplyDecisions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decisions []domain.DecisionPayload `json:"decisions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	decisions, err := domain.PayloadsToDecisions(req.Decisions)
	if err != nil {
		middleware.WriteErrorReason(w, http.StatusBadRequest, err.Error(), "invalid_decision")
		return
	}

	result, err := h.reconciler.ApplyDecisions(r.Context(), middleware.OwnerFromContext(r.Context()), r.PathValue("id"), decisions)
	if err != nil {
		writeDomainError(w, r, err, "Failed to apply decisions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Candidates handles GET /api/reconciliations/{id}/items/{item}/candidates.
func (h *ReconciliationsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.reconciler.Candidates(r.Context(), middleware.OwnerFromContext(r.Context()), r.PathValue("id"), r.PathValue("item"))
	if err != nil {
		writeDomainError(w, r, err, "Failed to find candidates")
		return
	}
	if candidates == nil {
		candidates = []domain.MatchCandidate{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// Category handles GET /api/reconciliations/{id}/items/{item}/category. The
// category is null when the history has no confident suggestion.
func (h *ReconciliationsHandler) Category(w http.ResponseWriter, r *http.Request) {
	category, err := h.reconciler.SuggestCategory(r.Context(), middleware.OwnerFromContext(r.Context()), r.PathValue("id"), r.PathValue("item"))
	if err != nil {
		writeDomainError(w, r, err, "Failed to suggest category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"category": category})
}

func intParam(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

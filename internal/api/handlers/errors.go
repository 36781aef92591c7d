package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/reconcile"
)

// errorMapping pairs a sentinel with its HTTP status, message and reason code.
type errorMapping struct {
	target  error
	status  int
	message string
	reason  string
}

var errorMappings = []errorMapping{
	{reconcile.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "Statement format is not supported", "unsupported_format"},
	{reconcile.ErrNothingToReconcile, http.StatusUnprocessableEntity, "Statement contains no transactions", "no_transactions"},
	{reconcile.ErrParseFailed, http.StatusUnprocessableEntity, "Statement could not be parsed", "parse_failed"},
	{reconcile.ErrInvalidDecision, http.StatusUnprocessableEntity, "Decision is not valid for this batch", "invalid_decision"},
	{reconcile.ErrAccountNotFound, http.StatusNotFound, "Account not found", "account_not_found"},
	{reconcile.ErrBatchNotFound, http.StatusNotFound, "Reconciliation batch not found", "batch_not_found"},
	{ledger.ErrNotFound, http.StatusNotFound, "Not found", "not_found"},
	{reconcile.ErrAlreadyLinked, http.StatusConflict, "Transaction is already reconciled", "already_linked"},
	{reconcile.ErrBatchTerminal, http.StatusConflict, "Reconciliation batch is already closed", "batch_terminal"},
	{reconcile.ErrInvalidTransition, http.StatusConflict, "Reconciliation batch cannot change state", "invalid_transition"},
}

// statusFor maps an orchestrator error onto a response. Unknown errors are 500.
func statusFor(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.message, m.reason
		}
	}
	return http.StatusInternalServerError, "Internal server error", "internal"
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status, message, reason := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Warn().Err(err).Int("status", status).Msg(msg)
	}
	middleware.WriteErrorReason(w, status, message, reason)
}

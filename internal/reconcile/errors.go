package reconcile

import (
	"errors"

	"github.com/dvloznov/statement-reconciler/internal/ledger"
	"github.com/dvloznov/statement-reconciler/internal/statement"
)

// Upload and review outcomes callers need to tell apart. The statement and
// ledger sentinels are re-exported so errors.Is works against either name.
var (
	ErrUnsupportedFormat  = statement.ErrUnsupportedFormat
	ErrParseFailed        = statement.ErrParseFailed
	ErrAlreadyLinked      = ledger.ErrAlreadyLinked
	ErrNothingToReconcile = errors.New("statement contains no transactions")
	ErrAccountNotFound    = errors.New("account not found")
	ErrBatchNotFound      = errors.New("reconciliation batch not found")
	ErrBatchTerminal      = errors.New("reconciliation batch is already completed or failed")
	ErrInvalidTransition  = errors.New("invalid reconciliation batch transition")
	ErrInvalidDecision    = errors.New("invalid decision")
)

// Package ledgerr defines the error taxonomy surfaced by the ledger
// engine (spec.md §7): the kind a caller or the HTTP layer switches on,
// plus the sentinel errors underneath each kind.
package ledgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry and HTTP status
// mapping. Exactly one Kind applies to any error returned across the
// engine's public surface.
type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict         Kind = "conflict"
	KindTransientConflict Kind = "transient_conflict"
	KindInternal         Kind = "internal"
)

// Sentinel errors. Domain code returns these (or wraps them via New/Wrap)
// so callers can use errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrDeadlockDetected  = errors.New("deadlock detected")
	ErrLockNotAvailable  = errors.New("lock not available")
	ErrDuplicateKey      = errors.New("duplicate idempotency key")
	ErrInternal          = errors.New("internal error")
)

// Error carries a Kind alongside a wrapped cause, with an opaque
// correlation id for Internal errors (spec.md §7: "surfaced with an
// opaque identifier for log correlation").
type Error struct {
	Kind    Kind
	Op      string
	CorrID  string
	cause   error
}

func (e *Error) Error() string {
	if e.CorrID != "" {
		return fmt.Sprintf("%s: %s (corr=%s): %v", e.Op, e.Kind, e.CorrID, e.cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a ledgerr.Error of the given kind wrapping cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, cause: cause}
}

// WithCorrID attaches a correlation id, used for Internal-kind errors.
func (e *Error) WithCorrID(id string) *Error {
	e.CorrID = id
	return e
}

// KindOf extracts the Kind of err, defaulting to KindInternal if err is
// not a *Error and does not match any known sentinel.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrTransactionNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrIdempotencyConflict), errors.Is(err, ErrDuplicateKey):
		return KindConflict
	case errors.Is(err, ErrSerializationFailure), errors.Is(err, ErrDeadlockDetected), errors.Is(err, ErrLockNotAvailable):
		return KindTransientConflict
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err belongs to a class the Retry Driver
// may safely retry: transient conflicts whose statements are proven
// side-effect-free (NOWAIT lock failures, serialization failures,
// deadlocks).
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientConflict
}

// IsClientError reports whether err is the caller's fault and should
// never be retried.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInsufficientFunds, KindConflict:
		return true
	default:
		return false
	}
}

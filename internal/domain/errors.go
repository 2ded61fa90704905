package domain

import "errors"

var (
	// ErrBatchNotFound is returned when a batch cannot be found in the database
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchChanged is returned when the optimistic status/updated_at check fails at write time
	ErrBatchChanged = errors.New("batch changed since it was read")

	// ErrMissingArticle is returned when a pending dispatch row references a missing article
	ErrMissingArticle = errors.New("pending dispatch references a missing article")

	// ErrInvariant is returned when a write would break a ledger invariant
	ErrInvariant = errors.New("ledger invariant violated")

	// ErrNotAccepted is returned when the generation webhook does not accept a dispatch
	ErrNotAccepted = errors.New("dispatch not accepted")

	// ErrUnknownTier is returned for balance tiers outside the known set
	ErrUnknownTier = errors.New("unknown balance tier")

	// ErrLeaseHeld is returned when another instance is already running a tick
	ErrLeaseHeld = errors.New("tick lease held by another instance")
)

// RetryableError wraps transient infra errors; the batch stays open and is re-evaluated next tick
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked as transient
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// Package billing holds the error taxonomy shared by the invoicing engine.
package billing

import "errors"

var (
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("billing: invalid amount")
	// ErrInvalidTransition indicates a status change outside the allowed edge set.
	ErrInvalidTransition = errors.New("billing: invalid status transition")
	// ErrNotFound indicates a referenced invoice, item or payment does not exist.
	ErrNotFound = errors.New("billing: not found")
	// ErrDeletionForbidden indicates an attempt to delete a paid invoice or one
	// with recorded payments.
	ErrDeletionForbidden = errors.New("billing: deletion forbidden")
	// ErrConflict indicates an idempotency-key replay or a lost optimistic
	// concurrency race that the caller may retry.
	ErrConflict = errors.New("billing: conflict")
)

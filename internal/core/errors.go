package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers branch with errors.Is; everything else is wrapped
// with fmt.Errorf("...: %w", err) on the way up.
var (
	// ErrValidation covers caller-supplied data failing a pre-condition.
	// Rejected before touching storage.
	ErrValidation = errors.New("validation failed")

	// ErrStorageFatal means local persistence is unavailable. The operation
	// is aborted and never retried automatically.
	ErrStorageFatal = errors.New("local storage failure")

	// ErrRemoteTransient is a retryable remote failure (network, timeout).
	// A mutation that hits it still succeeds: durability was achieved
	// locally and convergence is deferred to the next sync.
	ErrRemoteTransient = errors.New("transient remote failure")

	// ErrRemoteRejected is a non-retryable remote failure (validation or
	// authorization on the backend side).
	ErrRemoteRejected = errors.New("remote rejected request")

	ErrNotFound = errors.New("record not found")
)

var (
	ErrEmptyID        = fmt.Errorf("%w: empty record id", ErrValidation)
	ErrEmptyOwner     = fmt.Errorf("%w: empty owner id", ErrValidation)
	ErrEmptyCategory  = fmt.Errorf("%w: empty category", ErrValidation)
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrNoteTooLong    = fmt.Errorf("%w: note too long (max 500 characters)", ErrValidation)
	ErrZeroOccurredAt = fmt.Errorf("%w: zero occurred-at timestamp", ErrValidation)
)

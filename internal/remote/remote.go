// Package remote defines the uniform adapter interface over the configured
// remote backend. Exactly one implementation is selected at startup; the
// sync layer never knows which.
package remote

import (
	"context"

	"spend/internal/core"
)

// PushResult reports the outcome for a single record of a batch push.
// Partial batch success is reported per item, never as all-or-nothing.
type PushResult struct {
	ID  string
	Err error // nil when the remote acknowledged the record
}

// Backend is the capability set every remote store must provide.
//
// Errors returned from any call wrap either core.ErrRemoteTransient
// (network, timeout - safe to retry) or core.ErrRemoteRejected
// (validation/auth - not retried automatically).
type Backend interface {
	// Push uploads a single record, replacing any remote copy with the
	// same id.
	Push(ctx context.Context, r core.Record) error

	// PushBatch uploads several records. The returned slice has one entry
	// per input record. The error is non-nil only when the batch as a
	// whole could not be attempted.
	PushBatch(ctx context.Context, records []core.Record) ([]PushResult, error)

	// Pull returns the remote's current record set for the owner, ordered
	// by occurred-at descending, translated into the canonical shape with
	// SyncState already set to Synced.
	Pull(ctx context.Context, ownerID string) ([]core.Record, error)

	// Delete removes the remote copy. Deleting an absent record is
	// success, not an error.
	Delete(ctx context.Context, id string) error
}

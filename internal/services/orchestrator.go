// Package services contains the sync orchestrator: the state machine that
// sequences local writes, remote pushes, remote pulls and merge-on-pull.
// The local store is the durability boundary; the remote backend is a
// best-effort mirror that the orchestrator converges towards.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"spend/internal/core"
	"spend/internal/observe"
	"spend/internal/remote"
	"spend/internal/storage"
)

// ErrOffline is returned by TriggerSync when the connectivity check says
// the network is unreachable. It classifies as transient.
var ErrOffline = fmt.Errorf("%w: network unreachable", core.ErrRemoteTransient)

// Connectivity is the injected reachability check used to short-circuit
// TriggerSync before any remote call is attempted.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// CreateInput is the caller-supplied part of a new record. OccurredAt
// defaults to the creation time when zero.
type CreateInput struct {
	Amount        core.Money
	Category      string
	Note          string
	AttachmentRef string
	OccurredAt    time.Time
}

// Orchestrator serializes all engine operations per owner and owns the
// retry and partial-failure policy. It is safe for concurrent use.
type Orchestrator struct {
	store        *storage.SQLiteStore
	backend      remote.Backend
	hub          *observe.Hub
	connectivity Connectivity
	now          func() time.Time
	batchSize    int

	locks syncGroup
	sf    singleflight.Group
}

type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithConnectivity overrides the reachability check. The default assumes
// the network is up and lets the remote calls classify failures.
func WithConnectivity(c Connectivity) Option {
	return func(o *Orchestrator) { o.connectivity = c }
}

// WithBatchSize caps how many records go into a single PushBatch call
// during bulk sync.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOrchestrator wires the engine together. The backend is injected here
// once at startup; there is deliberately no way to swap it per call.
func NewOrchestrator(store *storage.SQLiteStore, backend remote.Backend, hub *observe.Hub, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		backend:      backend,
		hub:          hub,
		connectivity: alwaysOnline{},
		now:          time.Now,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitCreate validates the input, durably stores a new unsynced record,
// then attempts a single remote push. A transient push failure does not
// fail the operation: durability was achieved locally and convergence is
// deferred to the next sync. A rejected push is surfaced to the caller
// while the local write stays in place.
func (o *Orchestrator) SubmitCreate(ctx context.Context, ownerID string, in CreateInput) (string, error) {
	now := o.now()
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	rec := core.Record{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Amount:        in.Amount,
		Category:      in.Category,
		Note:          in.Note,
		AttachmentRef: in.AttachmentRef,
		OccurredAt:    occurredAt,
		SyncState:     core.Unsynced,
		CreatedAt:     now.UnixMilli(),
		UpdatedAt:     now.UnixMilli(),
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	unlock := o.locks.lock(ownerID)
	defer unlock()

	if err := o.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}

	if err := o.pushOne(ctx, rec); err != nil {
		return rec.ID, err
	}
	return rec.ID, nil
}

// SubmitUpdate stores new content for an existing record, resetting its
// sync state and advancing UpdatedAt strictly past the previous value,
// then attempts a single remote push with the same failure policy as
// SubmitCreate.
func (o *Orchestrator) SubmitUpdate(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	unlock := o.locks.lock(rec.OwnerID)
	defer unlock()

	existing, err := o.store.Get(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = o.nextTimestamp(existing.UpdatedAt)
	rec.SyncState = core.Unsynced
	rec.LastSyncError = ""

	if err := o.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	return o.pushOne(ctx, rec)
}

// SubmitDelete removes the record locally first; that commit is
// irrevocable. The remote delete is then attempted and its failure is
// returned as an error even though the local deletion stands: callers
// must not assume failure implies the record still exists anywhere.
func (o *Orchestrator) SubmitDelete(ctx context.Context, rec core.Record) error {
	unlock := o.locks.lock(rec.OwnerID)
	defer unlock()

	if err := o.store.Delete(ctx, rec); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if err := o.backend.Delete(ctx, rec.ID); err != nil {
		slog.WarnContext(ctx, "remote delete failed after local delete",
			"record_id", rec.ID, "owner_id", rec.OwnerID, "error", err)
		return fmt.Errorf("remote delete of %s: %w", rec.ID, err)
	}
	return nil
}

// TriggerSync runs the bulk sync path for an owner: push everything
// unsynced, then pull the remote set and merge it in with remote-wins
// semantics. Concurrent calls for the same owner coalesce into one pass.
// Every sub-step is idempotent, so a failed pass is safely retryable.
func (o *Orchestrator) TriggerSync(ctx context.Context, ownerID string) error {
	if !o.connectivity.Online(ctx) {
		return ErrOffline
	}

	_, err, _ := o.sf.Do(ownerID, func() (any, error) {
		unlock := o.locks.lock(ownerID)
		defer unlock()
		return nil, o.syncOwner(ctx, ownerID)
	})
	return err
}

// TotalInRange returns the owner's total spend between start and end
// inclusive.
func (o *Orchestrator) TotalInRange(ctx context.Context, ownerID string, start, end time.Time) (core.Money, error) {
	return o.store.SumInRange(ctx, ownerID, start, end)
}

// ObserveRecords exposes the owner's live record list; see observe.Hub.
func (o *Orchestrator) ObserveRecords(ctx context.Context, ownerID string) (<-chan []core.Record, func(), error) {
	return o.hub.ObserveRecords(ctx, ownerID)
}

// ObserveCategoryTotals exposes the owner's live category totals.
func (o *Orchestrator) ObserveCategoryTotals(ctx context.Context, ownerID string) (<-chan []core.CategoryTotal, func(), error) {
	return o.hub.ObserveCategoryTotals(ctx, ownerID)
}

// pushOne is the mutation-path remote attempt: single shot, no retry.
// Acked transitions the record to Synced; transient leaves it Unsynced
// and succeeds; rejected leaves it Unsynced and fails the operation.
func (o *Orchestrator) pushOne(ctx context.Context, rec core.Record) error {
	err := o.backend.Push(ctx, rec)
	if err == nil {
		if err := o.store.MarkSynced(ctx, rec.ID); err != nil {
			// The push itself succeeded; the flag converges on the next
			// sync pass because MarkSynced is idempotent.
			slog.WarnContext(ctx, "mark synced failed after ack",
				"record_id", rec.ID, "error", err)
		}
		return nil
	}

	if setErr := o.store.SetSyncError(ctx, rec.ID, err.Error()); setErr != nil {
		slog.WarnContext(ctx, "record sync error not persisted",
			"record_id", rec.ID, "error", setErr)
	}

	if errors.Is(err, core.ErrRemoteTransient) {
		slog.InfoContext(ctx, "push deferred to next sync",
			"record_id", rec.ID, "owner_id", rec.OwnerID, "error", err)
		return nil
	}
	return fmt.Errorf("push record %s: %w", rec.ID, err)
}

func (o *Orchestrator) syncOwner(ctx context.Context, ownerID string) error {
	var failures []error

	pending, err := o.store.ListUnsynced(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("sync %s: %w", ownerID, err)
	}

	if len(pending) > 0 {
		if err := o.pushPending(ctx, pending); err != nil {
			failures = append(failures, err)
		}
	}

	pulled, err := o.pullRemote(ctx, ownerID)
	if err != nil {
		failures = append(failures, err)
	}
	for _, r := range pulled {
		// Remote wins wholesale: it already reflects the just-pushed
		// local state plus any other device's writes.
		if err := o.store.Put(ctx, r); err != nil {
			return fmt.Errorf("sync %s: merge pulled record: %w", ownerID, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("sync %s: %w", ownerID, errors.Join(failures...))
	}

	slog.InfoContext(ctx, "sync pass complete",
		"owner_id", ownerID, "pushed", len(pending), "pulled", len(pulled))
	return nil
}

func (o *Orchestrator) pushPending(ctx context.Context, pending []core.Record) error {
	var batchErrs []error
	for len(pending) > 0 {
		n := min(len(pending), o.batchSize)
		if err := o.pushBatch(ctx, pending[:n]); err != nil {
			batchErrs = append(batchErrs, err)
		}
		pending = pending[n:]
	}
	return errors.Join(batchErrs...)
}

func (o *Orchestrator) pushBatch(ctx context.Context, batch []core.Record) error {
	var results []remote.PushResult

	err := retry.Do(ctx, o.backoff(), func(ctx context.Context) error {
		var err error
		results, err = o.backend.PushBatch(ctx, batch)
		if err != nil && errors.Is(err, core.ErrRemoteTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("push batch: %w", err)
	}

	var itemErrs []error
	for _, res := range results {
		if res.Err == nil {
			if err := o.store.MarkSynced(ctx, res.ID); err != nil {
				return err
			}
			continue
		}
		if err := o.store.SetSyncError(ctx, res.ID, res.Err.Error()); err != nil {
			return err
		}
		itemErrs = append(itemErrs, fmt.Errorf("record %s: %w", res.ID, res.Err))
	}
	return errors.Join(itemErrs...)
}

func (o *Orchestrator) pullRemote(ctx context.Context, ownerID string) ([]core.Record, error) {
	var pulled []core.Record

	err := retry.Do(ctx, o.backoff(), func(ctx context.Context) error {
		var err error
		pulled, err = o.backend.Pull(ctx, ownerID)
		if err != nil && errors.Is(err, core.ErrRemoteTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return pulled, nil
}

const defaultBatchSize = 50

func (o *Orchestrator) backoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(250*time.Millisecond))
}

// nextTimestamp keeps UpdatedAt strictly increasing even when two updates
// land within the same millisecond.
func (o *Orchestrator) nextTimestamp(prev int64) int64 {
	now := o.now().UnixMilli()
	if now <= prev {
		return prev + 1
	}
	return now
}

type alwaysOnline struct{}

func (alwaysOnline) Online(context.Context) bool { return true }

// syncGroup hands out one mutex per owner so that mutations and bulk sync
// for the same owner never interleave.
type syncGroup struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (g *syncGroup) lock(ownerID string) func() {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*sync.Mutex)
	}
	m, ok := g.locks[ownerID]
	if !ok {
		m = &sync.Mutex{}
		g.locks[ownerID] = m
	}
	g.mu.Unlock()

	m.Lock()
	return m.Unlock
}

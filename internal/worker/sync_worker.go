// Package worker runs the background convergence loop: a periodic sweep
// over every owner with pending records, plus on-demand passes driven by
// AMQP sync requests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spend/internal/amqp"
	"spend/internal/core"
	"spend/internal/services"
)

// Syncer is the slice of the orchestrator the worker drives.
type Syncer interface {
	TriggerSync(ctx context.Context, ownerID string) error
}

// OwnerLister reports which owners still have unsynced records.
type OwnerLister interface {
	OwnersWithUnsynced(ctx context.Context) ([]string, error)
}

// SyncWorker periodically converges every owner with pending records and
// handles on-demand sync requests. Start and Stop bracket its lifetime;
// Stop waits for an in-flight sweep to finish.
type SyncWorker struct {
	syncer   Syncer
	owners   OwnerLister
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncWorker(syncer Syncer, owners OwnerLister, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncWorker{
		syncer:   syncer,
		owners:   owners,
		interval: interval,
	}
}

// Start launches the periodic sweep loop. It returns an error if the
// worker is already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("sync worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run(ctx, w.stopCh, w.doneCh)

	slog.InfoContext(ctx, "sync worker started", "interval", w.interval)
	return nil
}

// Stop terminates the sweep loop and waits for it to exit. Stopping a
// worker that is not running is a no-op.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	slog.Info("sync worker stopped")
}

func (w *SyncWorker) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	// Startup sweep recovers owners left pending by a previous crash or
	// missed messages.
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one convergence pass over every owner with pending records.
// Per-owner failures are logged and skipped; one bad owner must not
// starve the rest.
func (w *SyncWorker) sweep(ctx context.Context) {
	owners, err := w.owners.OwnersWithUnsynced(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "sweep: list pending owners", "error", err)
		return
	}
	if len(owners) == 0 {
		return
	}

	slog.InfoContext(ctx, "sweep started", "owners", len(owners))

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return
		}
		if err := w.syncer.TriggerSync(ctx, ownerID); err != nil {
			level := slog.LevelError
			if errors.Is(err, core.ErrRemoteTransient) {
				// Expected while offline; the next sweep retries.
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "sweep: owner sync failed",
				"owner_id", ownerID, "error", err)
			if errors.Is(err, services.ErrOffline) {
				// No point visiting the remaining owners.
				return
			}
		}
	}
}

// HandleSyncRequest processes one on-demand sync request from AMQP.
// Transient failures, offline included, are swallowed rather than
// requeued: an immediate redelivery would just hit the same dead
// remote, and the periodic sweep covers the owner once it recovers.
// Anything else is returned so the delivery is dead-lettered.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	if msg.OwnerID == "" {
		return fmt.Errorf("sync request without owner")
	}

	slog.InfoContext(ctx, "processing sync request",
		"owner_id", msg.OwnerID, "reason", msg.Reason)

	err := w.syncer.TriggerSync(ctx, msg.OwnerID)
	if errors.Is(err, core.ErrRemoteTransient) {
		slog.WarnContext(ctx, "sync request deferred until remote recovers",
			"owner_id", msg.OwnerID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync owner %s: %w", msg.OwnerID, err)
	}
	return nil
}

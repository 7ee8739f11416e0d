package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spend/internal/amqp"
	"spend/internal/core"
	"spend/internal/services"
)

type fakeSyncer struct {
	mu     sync.Mutex
	calls  []string
	err    error
	errFor map[string]error
}

func (f *fakeSyncer) TriggerSync(_ context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ownerID)
	if e, ok := f.errFor[ownerID]; ok {
		return e
	}
	return f.err
}

func (f *fakeSyncer) synced() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeOwners struct {
	mu     sync.Mutex
	owners []string
	err    error
}

func (f *fakeOwners) OwnersWithUnsynced(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.owners...), f.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSyncWorker_StartupSweep(t *testing.T) {
	syncer := &fakeSyncer{}
	owners := &fakeOwners{owners: []string{"u1", "u2"}}
	w := NewSyncWorker(syncer, owners, time.Hour)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool { return len(syncer.synced()) >= 2 })

	got := syncer.synced()
	if got[0] != "u1" || got[1] != "u2" {
		t.Errorf("startup sweep synced %v, want [u1 u2]", got)
	}
}

func TestSyncWorker_PeriodicSweep(t *testing.T) {
	syncer := &fakeSyncer{}
	owners := &fakeOwners{owners: []string{"u1"}}
	w := NewSyncWorker(syncer, owners, 20*time.Millisecond)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	// At least the startup sweep plus two ticks.
	waitFor(t, func() bool { return len(syncer.synced()) >= 3 })
}

func TestSyncWorker_StartTwice(t *testing.T) {
	w := NewSyncWorker(&fakeSyncer{}, &fakeOwners{}, time.Hour)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}
}

func TestSyncWorker_StopIdempotent(t *testing.T) {
	w := NewSyncWorker(&fakeSyncer{}, &fakeOwners{}, time.Hour)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop() // must not panic or block

	// A stopped worker can be started again.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	w.Stop()
}

func TestSyncWorker_SweepContinuesPastFailedOwner(t *testing.T) {
	syncer := &fakeSyncer{
		errFor: map[string]error{
			"u1": fmt.Errorf("%w: document malformed", core.ErrRemoteRejected),
		},
	}
	owners := &fakeOwners{owners: []string{"u1", "u2"}}
	w := NewSyncWorker(syncer, owners, time.Hour)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	waitFor(t, func() bool { return len(syncer.synced()) >= 2 })
}

func TestSyncWorker_SweepAbortsWhenOffline(t *testing.T) {
	syncer := &fakeSyncer{err: services.ErrOffline}
	owners := &fakeOwners{owners: []string{"u1", "u2", "u3"}}
	w := NewSyncWorker(syncer, owners, time.Hour)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if got := len(syncer.synced()); got != 1 {
		t.Errorf("offline sweep visited %d owners, want 1", got)
	}
}

func TestHandleSyncRequest(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(syncer, &fakeOwners{}, time.Hour)

	msg := amqp.NewSyncRequestMessage("u1", amqp.ReasonManual)
	if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	if got := syncer.synced(); len(got) != 1 || got[0] != "u1" {
		t.Errorf("synced %v, want [u1]", got)
	}
}

func TestHandleSyncRequest_Errors(t *testing.T) {
	t.Run("missing owner", func(t *testing.T) {
		w := NewSyncWorker(&fakeSyncer{}, &fakeOwners{}, time.Hour)
		msg := &amqp.SyncRequestMessage{Reason: amqp.ReasonManual}
		if err := w.HandleSyncRequest(context.Background(), msg); err == nil {
			t.Error("empty owner should be rejected")
		}
	})

	t.Run("offline is swallowed", func(t *testing.T) {
		w := NewSyncWorker(&fakeSyncer{err: services.ErrOffline}, &fakeOwners{}, time.Hour)
		msg := amqp.NewSyncRequestMessage("u1", amqp.ReasonMutation)
		if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
			t.Errorf("offline should not requeue the message, got %v", err)
		}
	})

	t.Run("transient remote failure is deferred, not requeued", func(t *testing.T) {
		down := fmt.Errorf("%w: dial tcp: connection refused", core.ErrRemoteTransient)
		w := NewSyncWorker(&fakeSyncer{err: down}, &fakeOwners{}, time.Hour)
		msg := amqp.NewSyncRequestMessage("u1", amqp.ReasonMutation)
		if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
			t.Errorf("transient failure should defer to the periodic sweep, got %v", err)
		}
	})

	t.Run("sync failure propagates", func(t *testing.T) {
		syncErr := errors.New("backend exploded")
		w := NewSyncWorker(&fakeSyncer{err: syncErr}, &fakeOwners{}, time.Hour)
		msg := amqp.NewSyncRequestMessage("u1", amqp.ReasonManual)
		if err := w.HandleSyncRequest(context.Background(), msg); !errors.Is(err, syncErr) {
			t.Errorf("want wrapped sync error, got %v", err)
		}
	})
}

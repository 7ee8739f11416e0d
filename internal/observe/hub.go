// Package observe is the reactive query surface: push-based subscriptions
// over the local store's record list and category totals. The store drives
// it through its change notifier; subscribers never poll.
package observe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"spend/internal/cache"
	"spend/internal/core"
)

// Reader is the slice of the local store the hub needs to build snapshots.
type Reader interface {
	ListByOwner(ctx context.Context, ownerID string) ([]core.Record, error)
	SumByCategory(ctx context.Context, ownerID string) ([]core.CategoryTotal, error)
}

// Snapshot is one consistent view of an owner's data.
type Snapshot struct {
	Records []core.Record
	Totals  []core.CategoryTotal
}

const (
	snapshotCacheSize = 128
	snapshotCacheTTL  = 5 * time.Minute
	rebuildTimeout    = 10 * time.Second
)

// Hub fans a new snapshot out to every subscriber of an owner after each
// committing write. Channels are buffered with latest-wins semantics: a
// slow subscriber sees the newest snapshot, not every intermediate one.
type Hub struct {
	reader Reader
	snaps  *cache.LRU[Snapshot]

	mu      sync.Mutex
	nextID  int
	gens    map[string]uint64
	recSubs map[string]map[int]chan []core.Record
	totSubs map[string]map[int]chan []core.CategoryTotal
}

func NewHub(reader Reader) *Hub {
	return &Hub{
		reader:  reader,
		snaps:   cache.NewLRU[Snapshot](snapshotCacheSize, snapshotCacheTTL),
		gens:    make(map[string]uint64),
		recSubs: make(map[string]map[int]chan []core.Record),
		totSubs: make(map[string]map[int]chan []core.CategoryTotal),
	}
}

// ObserveRecords subscribes to the owner's record list. The current
// snapshot is delivered immediately; a new one arrives after every
// committing write. The returned func unsubscribes and is safe to call
// more than once.
//
// The channel is registered before the initial snapshot is read so a
// write committing mid-subscribe still reaches the subscriber. If the
// generation moves while the initial read is in flight, that read is
// discarded: the newer change's own fan-out carries the fresh snapshot.
func (h *Hub) ObserveRecords(ctx context.Context, ownerID string) (<-chan []core.Record, func(), error) {
	ch := make(chan []core.Record, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.recSubs[ownerID] == nil {
		h.recSubs[ownerID] = make(map[int]chan []core.Record)
	}
	h.recSubs[ownerID][id] = ch
	gen := h.gens[ownerID]
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.recSubs[ownerID], id)
			h.mu.Unlock()
		})
	}

	snap, err := h.snapshot(ctx, ownerID, gen)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	h.mu.Lock()
	if h.gens[ownerID] == gen {
		offer(ch, snap.Records)
	}
	h.mu.Unlock()

	return ch, cancel, nil
}

// ObserveCategoryTotals subscribes to the owner's per-category totals with
// the same delivery semantics as ObserveRecords.
func (h *Hub) ObserveCategoryTotals(ctx context.Context, ownerID string) (<-chan []core.CategoryTotal, func(), error) {
	ch := make(chan []core.CategoryTotal, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.totSubs[ownerID] == nil {
		h.totSubs[ownerID] = make(map[int]chan []core.CategoryTotal)
	}
	h.totSubs[ownerID][id] = ch
	gen := h.gens[ownerID]
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.totSubs[ownerID], id)
			h.mu.Unlock()
		})
	}

	snap, err := h.snapshot(ctx, ownerID, gen)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	h.mu.Lock()
	if h.gens[ownerID] == gen {
		offer(ch, snap.Totals)
	}
	h.mu.Unlock()

	return ch, cancel, nil
}

// RecordsChanged is the store's change notifier. It rebuilds the owner's
// snapshot and fans it out; wire it via storage.OnChange. Each change
// advances the owner's generation, so a rebuild overtaken by a later
// change delivers nothing and leaves the cache to the newer rebuild.
func (h *Hub) RecordsChanged(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	h.mu.Lock()
	h.gens[ownerID]++
	gen := h.gens[ownerID]
	h.mu.Unlock()

	snap, err := h.rebuild(ctx, ownerID, gen)
	if err != nil {
		// The write itself already committed; subscribers keep the last
		// snapshot and the next change retries the rebuild.
		slog.Error("snapshot rebuild failed", "owner_id", ownerID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gens[ownerID] != gen {
		return
	}
	for _, ch := range h.recSubs[ownerID] {
		offer(ch, snap.Records)
	}
	for _, ch := range h.totSubs[ownerID] {
		offer(ch, snap.Totals)
	}
}

func (h *Hub) snapshot(ctx context.Context, ownerID string, gen uint64) (Snapshot, error) {
	if snap, ok := h.snaps.Get(ownerID); ok {
		return snap, nil
	}
	return h.rebuild(ctx, ownerID, gen)
}

func (h *Hub) rebuild(ctx context.Context, ownerID string, gen uint64) (Snapshot, error) {
	records, err := h.reader.ListByOwner(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	totals, err := h.reader.SumByCategory(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Records: records, Totals: totals}
	h.mu.Lock()
	if h.gens[ownerID] == gen {
		h.snaps.Set(ownerID, snap)
	}
	h.mu.Unlock()
	return snap, nil
}

// offer delivers latest-wins: replace a stale buffered snapshot instead of
// blocking the store's commit path.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

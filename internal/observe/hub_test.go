package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spend/internal/core"
)

// fakeReader is an in-memory Reader with settable contents.
type fakeReader struct {
	mu      sync.Mutex
	records map[string][]core.Record
	totals  map[string][]core.CategoryTotal
	err     error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		records: make(map[string][]core.Record),
		totals:  make(map[string][]core.CategoryTotal),
	}
}

func (f *fakeReader) set(owner string, records []core.Record, totals []core.CategoryTotal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[owner] = records
	f.totals[owner] = totals
}

func (f *fakeReader) ListByOwner(_ context.Context, owner string) ([]core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[owner], f.err
}

func (f *fakeReader) SumByCategory(_ context.Context, owner string) ([]core.CategoryTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totals[owner], f.err
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		panic("unreachable")
	}
}

func expectNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected snapshot delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func rec(id string) core.Record {
	return core.Record{ID: id, OwnerID: "u1", Amount: core.Money{Cents: 100},
		Category: "Groceries", OccurredAt: time.Now(), SyncState: core.Unsynced}
}

func TestObserveRecordsInitialSnapshot(t *testing.T) {
	reader := newFakeReader()
	reader.set("u1", []core.Record{rec("r1")}, nil)
	hub := NewHub(reader)

	ch, cancel, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel()

	records := recv(t, ch)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ID)
}

func TestObserveRecordsDeliversOnChange(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	ch, cancel, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel()
	assert.Empty(t, recv(t, ch))

	reader.set("u1", []core.Record{rec("r1")}, nil)
	hub.RecordsChanged("u1")

	records := recv(t, ch)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ID)
}

func TestLatestSnapshotWins(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	ch, cancel, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel()
	recv(t, ch) // drain initial

	reader.set("u1", []core.Record{rec("r1")}, nil)
	hub.RecordsChanged("u1")
	reader.set("u1", []core.Record{rec("r1"), rec("r2")}, nil)
	hub.RecordsChanged("u1")

	records := recv(t, ch)
	assert.Len(t, records, 2, "stale snapshot should have been replaced")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	ch, cancel, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	recv(t, ch)

	cancel()
	cancel() // double-cancel is fine

	reader.set("u1", []core.Record{rec("r1")}, nil)
	hub.RecordsChanged("u1")
	expectNothing(t, ch)
}

func TestObserveCategoryTotals(t *testing.T) {
	reader := newFakeReader()
	reader.set("u1", nil, []core.CategoryTotal{{Category: "Groceries", Total: core.Money{Cents: 1250}}})
	hub := NewHub(reader)

	ch, cancel, err := hub.ObserveCategoryTotals(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel()

	totals := recv(t, ch)
	require.Len(t, totals, 1)
	assert.Equal(t, int64(1250), totals[0].Total.Cents)

	reader.set("u1", nil, []core.CategoryTotal{
		{Category: "Groceries", Total: core.Money{Cents: 1250}},
		{Category: "Transport", Total: core.Money{Cents: 300}},
	})
	hub.RecordsChanged("u1")
	assert.Len(t, recv(t, ch), 2)
}

func TestSubscribersAreScopedByOwner(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	ch1, cancel1, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := hub.ObserveRecords(context.Background(), "u2")
	require.NoError(t, err)
	defer cancel2()
	recv(t, ch1)
	recv(t, ch2)

	reader.set("u1", []core.Record{rec("r1")}, nil)
	hub.RecordsChanged("u1")

	assert.Len(t, recv(t, ch1), 1)
	expectNothing(t, ch2)
}

// gatedReader parks the first ListByOwner call after it has read its
// result, so a change can commit while a subscriber's initial read is
// in flight and that read completes holding pre-change data.
type gatedReader struct {
	inner   *fakeReader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedReader(inner *fakeReader) *gatedReader {
	return &gatedReader{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedReader) ListByOwner(ctx context.Context, owner string) ([]core.Record, error) {
	records, err := g.inner.ListByOwner(ctx, owner)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return records, err
}

func (g *gatedReader) SumByCategory(ctx context.Context, owner string) ([]core.CategoryTotal, error) {
	return g.inner.SumByCategory(ctx, owner)
}

func TestWriteDuringSubscribeReachesSubscriber(t *testing.T) {
	inner := newFakeReader()
	inner.set("u1", []core.Record{rec("r1")}, nil)
	gated := newGatedReader(inner)
	hub := NewHub(gated)

	type result struct {
		ch     <-chan []core.Record
		cancel func()
		err    error
	}
	done := make(chan result, 1)
	go func() {
		ch, cancel, err := hub.ObserveRecords(context.Background(), "u1")
		done <- result{ch, cancel, err}
	}()

	// Subscriber is parked inside its initial read; commit another record.
	<-gated.entered
	inner.set("u1", []core.Record{rec("r1"), rec("r2")}, nil)
	hub.RecordsChanged("u1")
	close(gated.release)

	res := recv(t, done)
	require.NoError(t, res.err)
	defer res.cancel()

	records := recv(t, res.ch)
	assert.Len(t, records, 2, "subscriber must converge on the committed write")

	// The overtaken initial read must not have poisoned the cache either.
	ch2, cancel2, err := hub.ObserveRecords(context.Background(), "u1")
	require.NoError(t, err)
	defer cancel2()
	assert.Len(t, recv(t, ch2), 2)
}

func TestObserveSurfacesReaderError(t *testing.T) {
	reader := newFakeReader()
	reader.err = errors.New("disk on fire")
	hub := NewHub(reader)

	_, _, err := hub.ObserveRecords(context.Background(), "u1")
	assert.Error(t, err)
}

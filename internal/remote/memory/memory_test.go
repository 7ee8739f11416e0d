package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spend/internal/core"
)

func record(id, owner string, occurredAt time.Time) core.Record {
	return core.Record{
		ID:         id,
		OwnerID:    owner,
		Amount:     core.Money{Cents: 100},
		Category:   "Transport",
		OccurredAt: occurredAt,
		SyncState:  core.Unsynced,
	}
}

func TestPushAndPull(t *testing.T) {
	store := New()
	ctx := context.Background()

	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Push(ctx, record("old", "u1", older)))
	require.NoError(t, store.Push(ctx, record("new", "u1", older.Add(time.Hour))))
	require.NoError(t, store.Push(ctx, record("other", "u2", older)))

	records, err := store.Pull(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, "old", records[1].ID)
	assert.Equal(t, core.Synced, records[0].SyncState)
}

func TestPushBatchReportsPerItem(t *testing.T) {
	store := New()

	bad := record("bad", "u1", time.Now())
	bad.Amount = core.Money{Cents: 0}
	results, err := store.PushBatch(context.Background(), []core.Record{
		record("ok", "u1", time.Now()),
		bad,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, core.ErrRemoteRejected)
	assert.Equal(t, 1, store.Len())
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, record("r1", "u1", time.Now())))
	require.NoError(t, store.Delete(ctx, "r1"))
	require.NoError(t, store.Delete(ctx, "r1"))
	assert.Equal(t, 0, store.Len())
}

func TestFailureInjection(t *testing.T) {
	store := New()
	ctx := context.Background()

	boom := fmt.Errorf("%w: injected", core.ErrRemoteTransient)
	store.FailPushWith(boom)
	assert.ErrorIs(t, store.Push(ctx, record("r1", "u1", time.Now())), core.ErrRemoteTransient)
	_, err := store.PushBatch(ctx, []core.Record{record("r1", "u1", time.Now())})
	assert.ErrorIs(t, err, core.ErrRemoteTransient)

	store.FailPushWith(nil)
	assert.NoError(t, store.Push(ctx, record("r1", "u1", time.Now())))

	store.FailPullWith(boom)
	_, err = store.Pull(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrRemoteTransient)

	store.FailDeleteWith(boom)
	assert.ErrorIs(t, store.Delete(ctx, "r1"), core.ErrRemoteTransient)
}

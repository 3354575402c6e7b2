package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/core/domain"
)

func testUnit(owner string, seq int, text string) domain.SyncableUnit {
	return domain.Page{NotebookUUID: owner, PageNumber: seq, Text: text, Confidence: 0.9}.Unit("Notebook")
}

func TestLedgerStore_Get_NotFound(t *testing.T) {
	store := NewLedgerStore()

	_, err := store.Get(context.Background(), "notion", domain.ItemTypePage, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerStore_Lifecycle(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()
	u := testUnit("nb-1", 1, "hello")
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.MarkPending(ctx, "notion", u, t0))
	rec, err := store.Get(ctx, "notion", u.ItemType, u.ItemID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPending, rec.Status)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Empty(t, rec.SyncedContentHash)

	t1 := t0.Add(time.Minute)
	require.NoError(t, store.RecordFailure(ctx, "notion", u, "boom", t1))
	require.NoError(t, store.RecordFailure(ctx, "notion", u, "boom again", t1))
	rec, err = store.Get(ctx, "notion", u.ItemType, u.ItemID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusError, rec.Status)
	assert.Equal(t, 2, rec.RetryCount)
	assert.Equal(t, "boom again", rec.ErrorMessage)

	// MarkPending leaves error records alone.
	require.NoError(t, store.MarkPending(ctx, "notion", u, t1))
	rec, _ = store.Get(ctx, "notion", u.ItemType, u.ItemID)
	assert.Equal(t, domain.SyncStatusError, rec.Status)

	t2 := t1.Add(time.Minute)
	require.NoError(t, store.RecordSuccess(ctx, "notion", u, "block-1", t2))
	rec, _ = store.Get(ctx, "notion", u.ItemType, u.ItemID)
	assert.Equal(t, domain.SyncStatusSuccess, rec.Status)
	assert.Equal(t, u.ContentHash, rec.SyncedContentHash)
	assert.Equal(t, "block-1", rec.ExternalRef)
	assert.Equal(t, 2, rec.RetryCount, "retry count is cumulative")
	assert.Empty(t, rec.ErrorMessage)
	assert.Equal(t, t2, rec.SyncedAt)
	assert.Equal(t, t0, rec.CreatedAt)

	// A success record moves back to pending, keeping hash and ref.
	require.NoError(t, store.MarkPending(ctx, "notion", u, t2))
	rec, _ = store.Get(ctx, "notion", u.ItemType, u.ItemID)
	assert.Equal(t, domain.SyncStatusPending, rec.Status)
	assert.Equal(t, "block-1", rec.ExternalRef)
}

func TestLedgerStore_OneRecordPerTarget(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()
	u := testUnit("nb-1", 1, "hello")
	now := time.Now()

	require.NoError(t, store.RecordSuccess(ctx, "notion", u, "a", now))
	require.NoError(t, store.RecordSuccess(ctx, "notion", u, "b", now))
	require.NoError(t, store.RecordSuccess(ctx, "readwise", u, "c", now))

	all, err := store.List(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLedgerStore_List_FilterAndOrder(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.MarkPending(ctx, "notion", testUnit("nb-2", 1, "a"), now))
	require.NoError(t, store.MarkPending(ctx, "notion", testUnit("nb-1", 1, "b"), now))
	require.NoError(t, store.MarkPending(ctx, "notion", testUnit("nb-1", 3, "c"), now))
	require.NoError(t, store.RecordFailure(ctx, "notion", testUnit("nb-1", 2, "d"), "x", now))
	require.NoError(t, store.RecordSuccess(ctx, "readwise", testUnit("nb-1", 4, "e"), "r", now))

	recs, err := store.List(ctx, domain.LedgerFilter{
		TargetName: "notion",
		Statuses:   []domain.SyncStatus{domain.SyncStatusPending, domain.SyncStatusError},
	})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "nb-1:page:3", recs[0].ItemID)
	assert.Equal(t, "nb-1:page:2", recs[1].ItemID)
	assert.Equal(t, "nb-1:page:1", recs[2].ItemID)
	assert.Equal(t, "nb-2:page:1", recs[3].ItemID)

	limited, err := store.List(ctx, domain.LedgerFilter{OwnerID: "nb-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedgerStore_StatsAndMaintenance(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	require.NoError(t, store.RecordSuccess(ctx, "notion", testUnit("nb", 1, "a"), "r1", now))
	require.NoError(t, store.RecordSuccess(ctx, "notion", testUnit("nb", 2, "b"), "r2", old))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordFailure(ctx, "readwise", testUnit("nb", 3, "c"), "x", old))
	}
	require.NoError(t, store.RecordFailure(ctx, "readwise", testUnit("nb", 4, "d"), "x", now))

	stats, err := store.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[domain.SyncStatusSuccess])
	assert.Equal(t, 2, stats.ByStatus[domain.SyncStatusError])
	assert.Equal(t, 2, stats.ByTarget["readwise"])
	assert.Equal(t, 4, stats.ByItemType[domain.ItemTypePage])
	assert.Equal(t, 1, stats.SyncedLast24)

	deleted, err := store.CleanupFailed(ctx, 3, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	reset, err := store.ResetRetries(ctx, "readwise")
	require.NoError(t, err)
	assert.Equal(t, 1, reset)
	rec, err := store.Get(ctx, "readwise", domain.ItemTypePage, "nb:page:4")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.RetryCount)
}

func TestLedgerStore_Runs(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.RecordRun(ctx, domain.RunRecord{ID: id}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}

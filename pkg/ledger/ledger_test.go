package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-drop/pkg/database"
)

func setupTestLedger(t *testing.T) *Ledger {
	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestScheduleAndGet(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	id, err := l.Schedule(ctx, "uploads", "1710000000000_0.png", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	d, err := l.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "uploads", d.BucketName)
	assert.Equal(t, "1710000000000_0.png", d.FilePath)
	assert.True(t, now.Add(time.Hour).Equal(d.ExpiresAt))
	assert.Nil(t, d.DeletedAt)

	missing, err := l.Get(ctx, 9999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDueOnlyReturnsExpiredLiveRows(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	older, _ := l.Schedule(ctx, "uploads", "a", now.Add(-2*time.Hour))
	newer, _ := l.Schedule(ctx, "uploads", "b", now.Add(-time.Minute))
	_, _ = l.Schedule(ctx, "uploads", "c", now.Add(time.Hour))
	_, _ = l.Schedule(ctx, "uploads", "boundary", now)
	gone, _ := l.Schedule(ctx, "uploads", "d", now.Add(-3*time.Hour))
	require.NoError(t, l.MarkDeleted(ctx, gone, now.Add(-time.Hour)))

	due, err := l.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older, due[0].ID)
	assert.Equal(t, newer, due[1].ID)
}

func TestDueEmpty(t *testing.T) {
	l := setupTestLedger(t)
	due, err := l.Due(context.Background(), now)
	assert.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkDeletedKeepsFirstStamp(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	id, _ := l.Schedule(ctx, "uploads", "a", now.Add(-time.Hour))
	require.NoError(t, l.MarkDeleted(ctx, id, now))
	require.NoError(t, l.MarkDeleted(ctx, id, now.Add(time.Hour)))

	d, err := l.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d.DeletedAt)
	assert.True(t, now.Equal(*d.DeletedAt))

	assert.Error(t, l.MarkDeleted(ctx, 424242, now))
}

func TestMarkDeletedByPath(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	_, _ = l.Schedule(ctx, "uploads", "a", now.Add(time.Hour))
	_, _ = l.Schedule(ctx, "other", "a", now.Add(time.Hour))

	n, err := l.MarkDeletedByPath(ctx, "uploads", "a", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.MarkDeletedByPath(ctx, "uploads", "missing", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCountsPartitionAllRows(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	_, _ = l.Schedule(ctx, "uploads", "expired", now.Add(-time.Hour))
	_, _ = l.Schedule(ctx, "uploads", "pending", now.Add(time.Hour))
	_, _ = l.Schedule(ctx, "uploads", "boundary", now)
	id, _ := l.Schedule(ctx, "uploads", "deleted", now.Add(-time.Hour))
	require.NoError(t, l.MarkDeleted(ctx, id, now))

	expired, err := l.CountExpired(ctx, now)
	require.NoError(t, err)
	pending, err := l.CountPending(ctx, now)
	require.NoError(t, err)
	deleted, err := l.CountDeleted(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), expired)
	assert.Equal(t, int64(2), pending)
	assert.Equal(t, int64(1), deleted)
}

func TestPurgeDeletedBefore(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	old, _ := l.Schedule(ctx, "uploads", "old", now.Add(-40*24*time.Hour))
	recent, _ := l.Schedule(ctx, "uploads", "recent", now.Add(-40*24*time.Hour))
	live, _ := l.Schedule(ctx, "uploads", "live", now.Add(-40*24*time.Hour))
	require.NoError(t, l.MarkDeleted(ctx, old, now.Add(-31*24*time.Hour)))
	require.NoError(t, l.MarkDeleted(ctx, recent, now.Add(-29*24*time.Hour)))

	n, err := l.PurgeDeletedBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	d, _ := l.Get(ctx, old)
	assert.Nil(t, d)
	d, _ = l.Get(ctx, recent)
	assert.NotNil(t, d)
	d, _ = l.Get(ctx, live)
	assert.NotNil(t, d)
}

package tombstone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
)

// confirmSync clears needs_push on every tombstone, standing in for the
// remote collaborator acknowledging the deletions.
func confirmSync(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	for _, table := range []string{"items", "tags", "item_tags", "time_entries"} {
		_, err := s.DB().Exec(
			"UPDATE " + table + " SET needs_push = 0 WHERE deleted_at IS NOT NULL")
		require.NoError(t, err)
	}
}

// backdate pushes every tombstone timestamp behind the given cutoff.
func backdate(t *testing.T, s *store.SQLiteStore, to time.Time) {
	t.Helper()
	for _, table := range []string{"items", "tags", "item_tags", "time_entries"} {
		_, err := s.DB().Exec(
			"UPDATE "+table+" SET deleted_at = ? WHERE deleted_at IS NOT NULL", to)
		require.NoError(t, err)
	}
}

func TestPurgeRemovesConfirmedExpiredTombstones(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	rootID, _, _, _ := buildSubtree(t, s)
	require.NoError(t, svc.DeleteItem(ctx, rootID))

	confirmSync(t, s)
	backdate(t, s, time.Now().UTC().Add(-31*24*time.Hour))

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Items)
	assert.Equal(t, int64(1), stats.ItemTags)
	assert.Equal(t, int64(1), stats.TimeEntries)
	assert.Equal(t, int64(0), stats.Tags)
	assert.Equal(t, int64(5), stats.Total())

	assert.Zero(t, countRows(t, s, "items"))
	assert.Zero(t, countRows(t, s, "item_tags"))
	assert.Zero(t, countRows(t, s, "time_entries"))
	// The tag was never deleted and stays.
	assert.Equal(t, 1, countRows(t, s, "tags"))
}

func TestPurgeSkipsUnconfirmedTombstones(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, newItem("unpushed", nil))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, id))

	// Old enough, but still dirty: the remote has not seen the deletion.
	backdate(t, s, time.Now().UTC().Add(-31*24*time.Hour))

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.Equal(t, 1, countRows(t, s, "items"))
}

func TestPurgeSkipsYoungTombstones(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, newItem("fresh", nil))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, id))
	confirmSync(t, s)

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.Equal(t, 1, countRows(t, s, "items"))
}

func TestPurgeNeverOrphansLiveChildren(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	parentID, err := s.CreateItem(ctx, newItem("parent", nil))
	require.NoError(t, err)
	_, err = s.CreateItem(ctx, newItem("child", &parentID))
	require.NoError(t, err)

	// Force the parent alone into a fully purge-eligible state. Normal
	// cascade deletes cannot produce this shape, but a crash between a
	// future partial-sync feature's writes might.
	expired := time.Now().UTC().Add(-31 * 24 * time.Hour)
	_, err = s.DB().Exec(`
		UPDATE items SET deleted_at = ?, needs_push = 0,
			remote_record_ref = 'rec-parent'
		WHERE id = ?`, expired, parentID)
	require.NoError(t, err)

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Items, "a referenced parent must never be purged")
	assert.Equal(t, 2, countRows(t, s, "items"))
}

func TestPurgeKeepsTagsWithRemainingAssociations(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	itemID, err := s.CreateItem(ctx, newItem("tagged", nil))
	require.NoError(t, err)
	tagID, err := s.CreateTag(ctx, model.Tag{Name: "sticky"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, itemID, tagID))

	// Tombstone the tag but leave its association dirty: the tag is
	// purge-eligible, the association is not, so both must stay.
	expired := time.Now().UTC().Add(-31 * 24 * time.Hour)
	_, err = s.DB().Exec(`
		UPDATE tags SET deleted_at = ?, needs_push = 0,
			remote_record_ref = 'rec-tag'
		WHERE id = ?`, expired, tagID)
	require.NoError(t, err)
	_, err = s.DB().Exec(
		"UPDATE item_tags SET deleted_at = ?, needs_push = 1 WHERE tag_id = ?",
		expired, tagID)
	require.NoError(t, err)

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.Equal(t, 1, countRows(t, s, "tags"))
	assert.Equal(t, 1, countRows(t, s, "item_tags"))
}

func TestHardPurgeDeepChain(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	// A ten-deep chain exercises the repeated leaf passes.
	var parent *string
	for i := 0; i < 10; i++ {
		id, err := s.CreateItem(ctx, newItem("link", parent))
		require.NoError(t, err)
		parent = &id
	}

	var rootID string
	require.NoError(t, s.DB().Get(&rootID,
		"SELECT id FROM items WHERE parent_id IS NULL"))
	require.NoError(t, svc.DeleteItem(ctx, rootID))

	// Still dirty, but hard purge does not care about sync state.
	stats, err := svc.HardPurge(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Items)
	assert.Zero(t, countRows(t, s, "items"))
}

func TestHardPurgeRespectsCutoff(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, newItem("recent", nil))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, id))

	stats, err := svc.HardPurge(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.Equal(t, 1, countRows(t, s, "items"))
}

// Exercises the documented end-to-end lifecycle: build a small tree,
// delete the root, confirm the cascade, acknowledge the push, purge.
func TestDeleteSyncPurgeLifecycle(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	aID, err := s.CreateItem(ctx, newItem("A", nil))
	require.NoError(t, err)
	bID, err := s.CreateItem(ctx, newItem("B", &aID))
	require.NoError(t, err)
	tagID, err := s.CreateTag(ctx, model.Tag{Name: "urgent"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, bID, tagID))

	require.NoError(t, svc.DeleteItem(ctx, aID))

	// Both items plus the association are dirty tombstones; the tag is
	// neither deleted nor dirty beyond its own creation.
	dirtyItems, err := s.DirtyItems(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, dirtyItems, 2)
	for _, it := range dirtyItems {
		assert.NotNil(t, it.DeletedAt)
		assert.NotNil(t, it.RemoteRecordRef)
	}
	dirtyLinks, err := s.DirtyItemTags(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dirtyLinks, 1)
	assert.NotNil(t, dirtyLinks[0].DeletedAt)

	tags, err := s.GetTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	// Remote acknowledges, retention elapses, purge runs.
	confirmSync(t, s)
	backdate(t, s, time.Now().UTC().Add(-31*24*time.Hour))

	stats, err := svc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Items)
	assert.Equal(t, int64(1), stats.ItemTags)

	assert.Zero(t, countRows(t, s, "items"))
	assert.Equal(t, 1, countRows(t, s, "tags"))
}

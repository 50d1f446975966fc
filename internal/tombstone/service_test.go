package tombstone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/tests/testutil"
)

func newTestService(t *testing.T) (*store.SQLiteStore, *Service) {
	t.Helper()
	s := testutil.NewTestStore(t)
	return s, New(s, Config{})
}

func newItem(title string, parentID *string) model.Item {
	return model.Item{Title: &title, ParentID: parentID}
}

func countRows(t *testing.T, s *store.SQLiteStore, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT count(*) FROM "+table))
	return n
}

// Builds a three-level subtree with a tag on the middle item and a time
// entry on the leaf: root -> mid -> leaf.
func buildSubtree(t *testing.T, s *store.SQLiteStore) (rootID, midID, leafID, tagID string) {
	t.Helper()
	ctx := context.Background()

	rootID, err := s.CreateItem(ctx, newItem("root project", nil))
	require.NoError(t, err)
	midID, err = s.CreateItem(ctx, newItem("middle task", &rootID))
	require.NoError(t, err)
	leafID, err = s.CreateItem(ctx, newItem("leaf task", &midID))
	require.NoError(t, err)

	tagID, err = s.CreateTag(ctx, model.Tag{Name: "urgent"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, midID, tagID))

	entryID, err := s.StartTimeEntry(ctx, leafID)
	require.NoError(t, err)
	require.NoError(t, s.StopTimeEntry(ctx, entryID))

	return rootID, midID, leafID, tagID
}

func TestDeleteItemCascades(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	rootID, midID, leafID, tagID := buildSubtree(t, s)

	itemsBefore := countRows(t, s, "items")
	linksBefore := countRows(t, s, "item_tags")
	entriesBefore := countRows(t, s, "time_entries")

	require.NoError(t, svc.DeleteItem(ctx, rootID))

	// Soft delete only: no physical rows removed.
	assert.Equal(t, itemsBefore, countRows(t, s, "items"))
	assert.Equal(t, linksBefore, countRows(t, s, "item_tags"))
	assert.Equal(t, entriesBefore, countRows(t, s, "time_entries"))

	// Every row in the closure is a dirty tombstone carrying a remote ref.
	var n int
	require.NoError(t, s.DB().Get(&n, `
		SELECT count(*) FROM items
		WHERE id IN (?, ?, ?) AND deleted_at IS NOT NULL
		AND needs_push = 1 AND remote_record_ref IS NOT NULL`,
		rootID, midID, leafID))
	assert.Equal(t, 3, n)

	require.NoError(t, s.DB().Get(&n,
		"SELECT count(*) FROM item_tags WHERE item_id = ? AND deleted_at IS NOT NULL AND remote_record_ref IS NOT NULL",
		midID))
	assert.Equal(t, 1, n)

	require.NoError(t, s.DB().Get(&n,
		"SELECT count(*) FROM time_entries WHERE item_id = ? AND deleted_at IS NOT NULL AND remote_record_ref IS NOT NULL",
		leafID))
	assert.Equal(t, 1, n)

	// The tag itself survives.
	tags, err := s.GetTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, tagID, tags[0].ID)

	// Tombstones are invisible to normal reads.
	_, err = s.GetItemByID(ctx, rootID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	all, err := s.GetItems(ctx, store.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteItemIdempotent(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, newItem("once", nil))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, id))

	var firstDeletedAt time.Time
	require.NoError(t, s.DB().Get(&firstDeletedAt,
		"SELECT deleted_at FROM items WHERE id = ?", id))

	// Second delete is a no-op: the tombstone timestamp does not move.
	require.NoError(t, svc.DeleteItem(ctx, id))
	var secondDeletedAt time.Time
	require.NoError(t, s.DB().Get(&secondDeletedAt,
		"SELECT deleted_at FROM items WHERE id = ?", id))
	assert.True(t, firstDeletedAt.Equal(secondDeletedAt))
}

func TestDeleteItemNotFound(t *testing.T) {
	_, svc := newTestService(t)
	err := svc.DeleteItem(context.Background(), "no-such-item")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteItemSparesSiblings(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	parentID, err := s.CreateItem(ctx, newItem("parent", nil))
	require.NoError(t, err)
	doomedID, err := s.CreateItem(ctx, newItem("doomed", &parentID))
	require.NoError(t, err)
	keptID, err := s.CreateItem(ctx, newItem("kept", &parentID))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, doomedID))

	children, err := s.GetChildren(ctx, parentID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, keptID, children[0].ID)
}

func TestDeleteTagCascadesToAssociations(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	itemID, err := s.CreateItem(ctx, newItem("tagged", nil))
	require.NoError(t, err)
	tagID, err := s.CreateTag(ctx, model.Tag{Name: "waiting"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, itemID, tagID))

	require.NoError(t, svc.DeleteTag(ctx, tagID))

	tags, err := s.GetTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	tags, err = s.GetTagsForItem(ctx, itemID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	// The tagged item is untouched.
	_, err = s.GetItemByID(ctx, itemID)
	require.NoError(t, err)
}

func TestDeleteItemTag(t *testing.T) {
	s, svc := newTestService(t)
	ctx := context.Background()

	itemID, err := s.CreateItem(ctx, newItem("keep both", nil))
	require.NoError(t, err)
	tagID, err := s.CreateTag(ctx, model.Tag{Name: "home"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, itemID, tagID))

	require.NoError(t, svc.DeleteItemTag(ctx, itemID, tagID))

	tags, err := s.GetTagsForItem(ctx, itemID)
	require.NoError(t, err)
	assert.Empty(t, tags)

	// Both endpoints survive.
	_, err = s.GetItemByID(ctx, itemID)
	require.NoError(t, err)
	all, err := s.GetTags(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Association delete is idempotent too.
	require.NoError(t, svc.DeleteItemTag(ctx, itemID, tagID))
}

func TestDeleteItemWideSubtreeChunks(t *testing.T) {
	s := testutil.NewTestStore(t)
	// A chunk size smaller than the fanout forces the chunked path.
	svc := New(s, Config{ChunkSize: 7})
	ctx := context.Background()

	rootID, err := s.CreateItem(ctx, newItem("wide root", nil))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, err := s.CreateItem(ctx, newItem("child", &rootID))
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteItem(ctx, rootID))

	var live int
	require.NoError(t, s.DB().Get(&live,
		"SELECT count(*) FROM items WHERE deleted_at IS NULL"))
	assert.Zero(t, live)
	var tombstoned int
	require.NoError(t, s.DB().Get(&tombstoned,
		"SELECT count(*) FROM items WHERE deleted_at IS NOT NULL AND needs_push = 1"))
	assert.Equal(t, 21, tombstoned)
}

func TestChunks(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	got := chunks(ids, 2)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b"}, got[0])
	assert.Equal(t, []string{"e"}, got[2])

	assert.Nil(t, chunks(nil, 2))
	assert.Len(t, chunks(ids, 10), 1)
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/tombstone"
	"github.com/zendegi/directgtd/tests/testutil"
)

// fakeRemote acknowledges every push with a deterministic ref, recording
// the order rows arrived in. failOn rejects one specific row ID.
type fakeRemote struct {
	order  []string
	failOn string
}

func (f *fakeRemote) ack(kind, id string) (store.SyncAck, error) {
	if id == f.failOn {
		return store.SyncAck{}, errors.New("remote unavailable")
	}
	f.order = append(f.order, kind+":"+id)
	ref := "rec-" + id
	tag := "etag-" + id
	return store.SyncAck{
		RemoteRecordRef: &ref,
		RemoteChangeTag: &tag,
		SyncedAt:        time.Now().UTC(),
	}, nil
}

func (f *fakeRemote) PushTag(_ context.Context, t model.Tag) (store.SyncAck, error) {
	return f.ack("tag", t.ID)
}

func (f *fakeRemote) PushItem(_ context.Context, i model.Item) (store.SyncAck, error) {
	return f.ack("item", i.ID)
}

func (f *fakeRemote) PushItemTag(_ context.Context, l model.ItemTag) (store.SyncAck, error) {
	return f.ack("item_tag", fmt.Sprintf("%s/%s", l.ItemID, l.TagID))
}

func (f *fakeRemote) PushTimeEntry(_ context.Context, e model.TimeEntry) (store.SyncAck, error) {
	return f.ack("time_entry", e.ID)
}

func (f *fakeRemote) PushSavedQuery(_ context.Context, q model.SavedQuery) (store.SyncAck, error) {
	return f.ack("saved_query", q.ID)
}

func TestPushAllDrainsDirtyRows(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	itemID, err := s.CreateItem(ctx, model.Item{Title: ptr("write report")})
	require.NoError(t, err)
	tagID, err := s.CreateTag(ctx, model.Tag{Name: "work"})
	require.NoError(t, err)
	require.NoError(t, s.LinkTag(ctx, itemID, tagID))
	entryID, err := s.StartTimeEntry(ctx, itemID)
	require.NoError(t, err)

	remote := &fakeRemote{}
	pushed, err := NewPusher(s, remote, 0).PushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, pushed)

	// Endpoints go before the association that joins them.
	assert.Equal(t, []string{
		"tag:" + tagID,
		"item:" + itemID,
		"item_tag:" + itemID + "/" + tagID,
		"time_entry:" + entryID,
	}, remote.order)

	// Nothing is dirty anymore, and the acks landed.
	dirty, err := s.DirtyItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	item, err := s.GetItemByID(ctx, itemID)
	require.NoError(t, err)
	require.NotNil(t, item.RemoteRecordRef)
	assert.Equal(t, "rec-"+itemID, *item.RemoteRecordRef)

	// A second pass has nothing to do.
	pushed, err = NewPusher(s, remote, 0).PushAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, pushed)
}

func TestPushAllStopsOnRemoteFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	goodID, err := s.CreateItem(ctx, model.Item{Title: ptr("good")})
	require.NoError(t, err)
	badID, err := s.CreateItem(ctx, model.Item{Title: ptr("bad")})
	require.NoError(t, err)
	_ = goodID

	remote := &fakeRemote{failOn: badID}
	pushed, err := NewPusher(s, remote, 0).PushAll(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, pushed)

	// The failed row stays dirty for the next pass.
	dirty, err := s.DirtyItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, badID, dirty[0].ID)
}

func TestPushAllTransmitsTombstones(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, model.Item{Title: ptr("doomed")})
	require.NoError(t, err)
	svc := tombstone.New(s, tombstone.Config{})
	require.NoError(t, svc.DeleteItem(ctx, id))

	remote := &fakeRemote{}
	pushed, err := NewPusher(s, remote, 0).PushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.Equal(t, []string{"item:" + id}, remote.order)

	// After acknowledgment the tombstone is a purge candidate.
	var n int
	require.NoError(t, s.DB().Get(&n, `
		SELECT count(*) FROM items
		WHERE id = ? AND deleted_at IS NOT NULL AND needs_push = 0
		AND remote_record_ref IS NOT NULL`, id))
	assert.Equal(t, 1, n)
}

func TestSchedulerRunsPurge(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.CreateItem(ctx, model.Item{Title: ptr("expired")})
	require.NoError(t, err)
	svc := tombstone.New(s, tombstone.Config{Retention: time.Millisecond})
	require.NoError(t, svc.DeleteItem(ctx, id))
	_, err = s.DB().Exec("UPDATE items SET needs_push = 0 WHERE id = ?", id)
	require.NoError(t, err)

	sched := NewScheduler(svc, 5*time.Millisecond)
	sched.Start(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		var n int
		if err := s.DB().Get(&n, "SELECT count(*) FROM items"); err != nil {
			return false
		}
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func ptr(s string) *string { return &s }

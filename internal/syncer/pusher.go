// Package syncer holds the local half of the remote synchronization
// contract: draining dirty rows toward a remote client and applying its
// acknowledgments, plus the periodic maintenance loop. The remote wire
// format and conflict policy live entirely behind the RemoteClient
// interface.
package syncer

import (
	"context"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
)

// RemoteClient is the remote synchronization collaborator. Each Push
// method transmits one local row (which may be a tombstone, observed via
// its DeletedAt field) and returns the acknowledgment to record locally.
type RemoteClient interface {
	PushTag(ctx context.Context, tag model.Tag) (store.SyncAck, error)
	PushItem(ctx context.Context, item model.Item) (store.SyncAck, error)
	PushItemTag(ctx context.Context, link model.ItemTag) (store.SyncAck, error)
	PushTimeEntry(ctx context.Context, entry model.TimeEntry) (store.SyncAck, error)
	PushSavedQuery(ctx context.Context, q model.SavedQuery) (store.SyncAck, error)
}

// Pusher drains dirty rows through a RemoteClient and clears needs_push
// as acknowledgments arrive.
type Pusher struct {
	store  store.Store
	remote RemoteClient
	batch  int
}

// NewPusher creates a pusher reading dirty rows in batches of batchSize
// (0 means unbounded).
func NewPusher(s store.Store, remote RemoteClient, batchSize int) *Pusher {
	return &Pusher{store: s, remote: remote, batch: batchSize}
}

// PushAll transmits every dirty row, parents before dependents: tags and
// items first so the remote knows both ends before the associations that
// join them arrive. Returns the number of rows acknowledged. A remote
// failure stops the pass; rows not yet acknowledged stay dirty and are
// retried on the next pass.
func (p *Pusher) PushAll(ctx context.Context) (int, error) {
	pushed := 0

	tags, err := p.store.DirtyTags(ctx, p.batch)
	if err != nil {
		return pushed, err
	}
	for _, tag := range tags {
		ack, err := p.remote.PushTag(ctx, tag)
		if err != nil {
			return pushed, fmt.Errorf("pushing tag %s: %w", tag.ID, err)
		}
		if err := p.store.MarkTagSynced(ctx, tag.ID, ack); err != nil {
			return pushed, err
		}
		pushed++
	}

	items, err := p.store.DirtyItems(ctx, p.batch)
	if err != nil {
		return pushed, err
	}
	for _, item := range items {
		ack, err := p.remote.PushItem(ctx, item)
		if err != nil {
			return pushed, fmt.Errorf("pushing item %s: %w", item.ID, err)
		}
		if err := p.store.MarkItemSynced(ctx, item.ID, ack); err != nil {
			return pushed, err
		}
		pushed++
	}

	links, err := p.store.DirtyItemTags(ctx, p.batch)
	if err != nil {
		return pushed, err
	}
	for _, link := range links {
		ack, err := p.remote.PushItemTag(ctx, link)
		if err != nil {
			return pushed, fmt.Errorf("pushing item_tag %s/%s: %w", link.ItemID, link.TagID, err)
		}
		if err := p.store.MarkItemTagSynced(ctx, link.ItemID, link.TagID, ack); err != nil {
			return pushed, err
		}
		pushed++
	}

	entries, err := p.store.DirtyTimeEntries(ctx, p.batch)
	if err != nil {
		return pushed, err
	}
	for _, entry := range entries {
		ack, err := p.remote.PushTimeEntry(ctx, entry)
		if err != nil {
			return pushed, fmt.Errorf("pushing time entry %s: %w", entry.ID, err)
		}
		if err := p.store.MarkTimeEntrySynced(ctx, entry.ID, ack); err != nil {
			return pushed, err
		}
		pushed++
	}

	queries, err := p.store.DirtySavedQueries(ctx, p.batch)
	if err != nil {
		return pushed, err
	}
	for _, q := range queries {
		ack, err := p.remote.PushSavedQuery(ctx, q)
		if err != nil {
			return pushed, fmt.Errorf("pushing saved query %s: %w", q.ID, err)
		}
		if err := p.store.MarkSavedQuerySynced(ctx, q.ID, ack); err != nil {
			return pushed, err
		}
		pushed++
	}

	return pushed, nil
}

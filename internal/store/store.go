package store

import (
	"context"
	"time"

	"github.com/zendegi/directgtd/internal/model"
)

// ItemFilter controls filtering, sorting, and pagination for item queries.
// Tombstoned rows are always excluded.
type ItemFilter struct {
	Kind      *string  // "Task", "Project", ... or nil (all)
	ParentID  *string  // parent item UUID, "root" (NULL parent_id), or nil (all)
	TagIDs    []string // filter by any of these tags (OR logic)
	Query     *string  // search title + notes
	Completed *bool    // true = completed only, false = open only, nil = all
	SortBy    string   // "sort_order", "due_date", "created_at", "modified_at", "title"
	SortDesc  bool
	Limit     int
	Offset    int
}

// Store defines the persistence interface for items, tags, time entries,
// and saved queries. All reads see only live rows (deleted_at IS NULL);
// all writes mark the affected rows dirty for the sync collaborator.
// Deletions are not part of this interface: they route through the
// tombstone service.
type Store interface {
	// === Items ===

	CreateItem(ctx context.Context, item model.Item) (string, error)
	UpdateItem(ctx context.Context, item model.Item) error
	GetItemByID(ctx context.Context, id string) (*model.Item, error)
	GetItems(ctx context.Context, filter ItemFilter) ([]model.Item, error)
	GetChildren(ctx context.Context, parentID string) ([]model.Item, error)
	MoveItem(ctx context.Context, id string, newParentID *string, newSortOrder int) error
	CompleteItem(ctx context.Context, id string, completed bool) error

	// === Tags ===

	CreateTag(ctx context.Context, tag model.Tag) (string, error)
	UpdateTag(ctx context.Context, tag model.Tag) error
	GetTags(ctx context.Context) ([]model.Tag, error)
	GetTagsForItem(ctx context.Context, itemID string) ([]model.Tag, error)
	LinkTag(ctx context.Context, itemID, tagID string) error

	// === Time entries ===

	StartTimeEntry(ctx context.Context, itemID string) (string, error)
	StopTimeEntry(ctx context.Context, id string) error
	GetTimeEntriesForItem(ctx context.Context, itemID string) ([]model.TimeEntry, error)

	// === Saved queries ===

	CreateSavedQuery(ctx context.Context, q model.SavedQuery) (string, error)
	UpdateSavedQuery(ctx context.Context, q model.SavedQuery) error
	GetSavedQueries(ctx context.Context) ([]model.SavedQuery, error)

	// === Settings ===

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// === Sync hooks (consumed by the remote-sync collaborator) ===

	DirtyItems(ctx context.Context, limit int) ([]model.Item, error)
	DirtyTags(ctx context.Context, limit int) ([]model.Tag, error)
	DirtyItemTags(ctx context.Context, limit int) ([]model.ItemTag, error)
	DirtyTimeEntries(ctx context.Context, limit int) ([]model.TimeEntry, error)
	DirtySavedQueries(ctx context.Context, limit int) ([]model.SavedQuery, error)

	MarkItemSynced(ctx context.Context, id string, ack SyncAck) error
	MarkTagSynced(ctx context.Context, id string, ack SyncAck) error
	MarkItemTagSynced(ctx context.Context, itemID, tagID string, ack SyncAck) error
	MarkTimeEntrySynced(ctx context.Context, id string, ack SyncAck) error
	MarkSavedQuerySynced(ctx context.Context, id string, ack SyncAck) error
}

// SyncAck is what the remote collaborator writes back after a row has
// been confirmed transmitted: the remote identity, the optimistic
// concurrency token, and (for items and tags) the opaque system-field
// blob needed to reconstruct the remote record later.
type SyncAck struct {
	RemoteRecordRef    *string
	RemoteChangeTag    *string
	RemoteSystemFields []byte
	SyncedAt           time.Time
}

package model

import "time"

// Item kinds. These match the unified node types carried over from the
// FastGTD import path; smart folders are represented as saved queries
// instead of an item kind.
const (
	KindTask     = "Task"
	KindProject  = "Project"
	KindNote     = "Note"
	KindFolder   = "Folder"
	KindEvent    = "Event"
	KindHeading  = "Heading"
	KindLink     = "Link"
	KindTemplate = "Template"
)

// SyncFields are the change-tracking columns shared by every synced table.
// A row with DeletedAt set is a tombstone: invisible to normal reads but
// retained until the remote collaborator has observed the deletion.
type SyncFields struct {
	RemoteRecordRef *string    `json:"remote_record_ref,omitempty" db:"remote_record_ref"`
	RemoteChangeTag *string    `json:"remote_change_tag,omitempty" db:"remote_change_tag"`
	NeedsPush       bool       `json:"needs_push" db:"needs_push"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Item is a node in the outline hierarchy: a task, project, note, folder,
// or any of the other kinds above. ParentID is nil for root items.
type Item struct {
	ID                string     `json:"id" db:"id"`
	Title             *string    `json:"title,omitempty" db:"title"`
	Kind              string     `json:"kind" db:"kind"`
	Notes             *string    `json:"notes,omitempty" db:"notes"`
	ParentID          *string    `json:"parent_id,omitempty" db:"parent_id"`
	SortOrder         int        `json:"sort_order" db:"sort_order"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt        time.Time  `json:"modified_at" db:"modified_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DueDate           *time.Time `json:"due_date,omitempty" db:"due_date"`
	EarliestStartTime *time.Time `json:"earliest_start_time,omitempty" db:"earliest_start_time"`

	SyncFields

	// RemoteSystemFields is the opaque blob the sync collaborator needs to
	// reconstruct the remote record. Never interpreted locally.
	RemoteSystemFields []byte `json:"-" db:"remote_system_fields"`

	// Tags is populated by queries that join with item_tags.
	Tags []Tag `json:"tags,omitempty" db:"-"`
}

// Completed reports whether the item has been marked done.
func (i *Item) Completed() bool {
	return i.CompletedAt != nil
}

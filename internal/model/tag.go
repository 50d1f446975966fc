package model

import "time"

// Tag is a cross-cutting label for categorizing items.
type Tag struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Color      *string   `json:"color,omitempty" db:"color"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	SyncFields

	RemoteSystemFields []byte `json:"-" db:"remote_system_fields"`
}

// ItemTag associates an item with a tag. The pair (ItemID, TagID) is the
// primary key; the association carries its own sync fields so the remote
// collaborator can observe link and unlink operations as first-class
// changes.
type ItemTag struct {
	ItemID     string    `json:"item_id" db:"item_id"`
	TagID      string    `json:"tag_id" db:"tag_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	SyncFields
}

package model

import "time"

// SavedQuery is a stored read-only query the user can re-run, the
// replacement for the old smart-folder concept. QueryText is executed
// through the sandboxed executor, never directly.
type SavedQuery struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	QueryText  string    `json:"query_text" db:"query_text"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	SyncFields
}

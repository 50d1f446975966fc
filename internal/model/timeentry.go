package model

import "time"

// TimeEntry records a span of time spent on an item. EndedAt and Duration
// are nil while the entry is still running.
type TimeEntry struct {
	ID         string     `json:"id" db:"id"`
	ItemID     string     `json:"item_id" db:"item_id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Duration   *float64   `json:"duration,omitempty" db:"duration"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt time.Time  `json:"modified_at" db:"modified_at"`

	SyncFields
}

// Running reports whether the entry is still open.
func (e *TimeEntry) Running() bool {
	return e.EndedAt == nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zendegi/directgtd/internal/model"
)

const timeEntryColumns = `id, item_id, started_at, ended_at, duration,
	created_at, modified_at, remote_record_ref, remote_change_tag,
	needs_push, deleted_at`

// StartTimeEntry opens a new running time entry against a live item and
// returns the entry's ID.
func (s *SQLiteStore) StartTimeEntry(ctx context.Context, itemID string) (string, error) {
	if _, err := s.GetItemByID(ctx, itemID); err != nil {
		return "", fmt.Errorf("starting time entry: %w", err)
	}

	id := uuid.New().String()
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_entries (id, item_id, started_at, created_at, modified_at, needs_push)
		VALUES (?, ?, ?, ?, ?, 1)`,
		id, itemID, ts, ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("starting time entry for item %s: %w", itemID, err)
	}
	return id, nil
}

// StopTimeEntry closes a running time entry, computing its duration in
// seconds. The duration is computed in Go: the driver binds time.Time in
// a form SQLite's date functions cannot parse, so it must not be derived
// in SQL. Stopping an already-stopped entry is an error.
func (s *SQLiteStore) StopTimeEntry(ctx context.Context, id string) error {
	var startedAt time.Time
	err := s.db.GetContext(ctx, &startedAt, `
		SELECT started_at FROM time_entries
		WHERE id = ? AND ended_at IS NULL AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("running time entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading time entry %s: %w", id, err)
	}

	ts := now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE time_entries SET ended_at = ?, duration = ?, modified_at = ?, needs_push = 1
		WHERE id = ? AND ended_at IS NULL AND deleted_at IS NULL`,
		ts, ts.Sub(startedAt).Seconds(), ts, id,
	)
	if err != nil {
		return fmt.Errorf("stopping time entry %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("running time entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetTimeEntriesForItem retrieves all live time entries for an item,
// newest first.
func (s *SQLiteStore) GetTimeEntriesForItem(ctx context.Context, itemID string) ([]model.TimeEntry, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+timeEntryColumns+` FROM time_entries
		WHERE item_id = ? AND deleted_at IS NULL
		ORDER BY started_at DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying time entries for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var entries []model.TimeEntry
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// scanTimeEntry scans a time entry row. The column order matches
// timeEntryColumns.
func scanTimeEntry(row interface{ Scan(dest ...interface{}) error }) (model.TimeEntry, error) {
	var (
		entry        model.TimeEntry
		needsPushInt int
	)

	err := row.Scan(
		&entry.ID, &entry.ItemID, &entry.StartedAt, &entry.EndedAt,
		&entry.Duration, &entry.CreatedAt, &entry.ModifiedAt,
		&entry.RemoteRecordRef, &entry.RemoteChangeTag, &needsPushInt,
		&entry.DeletedAt,
	)
	if err != nil {
		return model.TimeEntry{}, fmt.Errorf("scanning time entry row: %w", err)
	}

	entry.NeedsPush = needsPushInt != 0
	return entry, nil
}

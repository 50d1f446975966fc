package store

import (
	"context"
	"fmt"

	"github.com/zendegi/directgtd/internal/model"
)

// The dirty-row queries below are the local half of the remote-sync
// contract: the collaborator reads rows with needs_push = 1 (including
// tombstones, which it must propagate as remote deletions), transmits
// them, and acknowledges through the MarkXSynced methods. Tombstoned rows
// are deliberately NOT filtered out here.

// DirtyItems returns items awaiting transmission, oldest change first.
func (s *SQLiteStore) DirtyItems(ctx context.Context, limit int) ([]model.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE needs_push = 1 ORDER BY modified_at"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying dirty items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DirtyTags returns tags awaiting transmission, oldest change first.
func (s *SQLiteStore) DirtyTags(ctx context.Context, limit int) ([]model.Tag, error) {
	query := "SELECT " + tagColumns + " FROM tags WHERE needs_push = 1 ORDER BY modified_at"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying dirty tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// DirtyItemTags returns tag associations awaiting transmission.
func (s *SQLiteStore) DirtyItemTags(ctx context.Context, limit int) ([]model.ItemTag, error) {
	query := `SELECT item_id, tag_id, created_at, modified_at,
		remote_record_ref, remote_change_tag, needs_push, deleted_at
		FROM item_tags WHERE needs_push = 1 ORDER BY modified_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying dirty item_tags: %w", err)
	}
	defer rows.Close()

	var links []model.ItemTag
	for rows.Next() {
		link, err := scanItemTag(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// DirtyTimeEntries returns time entries awaiting transmission.
func (s *SQLiteStore) DirtyTimeEntries(ctx context.Context, limit int) ([]model.TimeEntry, error) {
	query := "SELECT " + timeEntryColumns + " FROM time_entries WHERE needs_push = 1 ORDER BY modified_at"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying dirty time entries: %w", err)
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

// DirtySavedQueries returns saved queries awaiting transmission.
func (s *SQLiteStore) DirtySavedQueries(ctx context.Context, limit int) ([]model.SavedQuery, error) {
	query := "SELECT " + savedQueryColumns + " FROM saved_queries WHERE needs_push = 1 ORDER BY modified_at"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying dirty saved queries: %w", err)
	}
	defer rows.Close()

	var queries []model.SavedQuery
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// MarkItemSynced records a confirmed remote transmission for an item:
// remote identity and change tag are written back, the system-field blob
// is preserved, and needs_push is cleared. Applies to tombstones too.
func (s *SQLiteStore) MarkItemSynced(ctx context.Context, id string, ack SyncAck) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET remote_record_ref = ?, remote_change_tag = ?,
			remote_system_fields = ?, needs_push = 0
		WHERE id = ?`,
		ack.RemoteRecordRef, ack.RemoteChangeTag, ack.RemoteSystemFields, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging item %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkTagSynced records a confirmed remote transmission for a tag.
func (s *SQLiteStore) MarkTagSynced(ctx context.Context, id string, ack SyncAck) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tags SET remote_record_ref = ?, remote_change_tag = ?,
			remote_system_fields = ?, needs_push = 0
		WHERE id = ?`,
		ack.RemoteRecordRef, ack.RemoteChangeTag, ack.RemoteSystemFields, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging tag %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkItemTagSynced records a confirmed remote transmission for a tag
// association.
func (s *SQLiteStore) MarkItemTagSynced(ctx context.Context, itemID, tagID string, ack SyncAck) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE item_tags SET remote_record_ref = ?, remote_change_tag = ?, needs_push = 0
		WHERE item_id = ? AND tag_id = ?`,
		ack.RemoteRecordRef, ack.RemoteChangeTag, itemID, tagID,
	)
	if err != nil {
		return fmt.Errorf("acknowledging item_tag %s/%s: %w", itemID, tagID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item_tag %s/%s: %w", itemID, tagID, ErrNotFound)
	}
	return nil
}

// MarkTimeEntrySynced records a confirmed remote transmission for a time
// entry.
func (s *SQLiteStore) MarkTimeEntrySynced(ctx context.Context, id string, ack SyncAck) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE time_entries SET remote_record_ref = ?, remote_change_tag = ?, needs_push = 0
		WHERE id = ?`,
		ack.RemoteRecordRef, ack.RemoteChangeTag, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging time entry %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("time entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkSavedQuerySynced records a confirmed remote transmission for a
// saved query.
func (s *SQLiteStore) MarkSavedQuerySynced(ctx context.Context, id string, ack SyncAck) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE saved_queries SET remote_record_ref = ?, remote_change_tag = ?, needs_push = 0
		WHERE id = ?`,
		ack.RemoteRecordRef, ack.RemoteChangeTag, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledging saved query %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("saved query %s: %w", id, ErrNotFound)
	}
	return nil
}

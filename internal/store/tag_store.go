package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zendegi/directgtd/internal/model"
)

const tagColumns = `id, name, color, created_at, modified_at,
	remote_record_ref, remote_change_tag, needs_push, deleted_at,
	remote_system_fields`

// CreateTag inserts a new tag. Generates a UUID if ID is empty and
// returns the tag's ID.
func (s *SQLiteStore) CreateTag(ctx context.Context, tag model.Tag) (string, error) {
	if strings.TrimSpace(tag.Name) == "" {
		return "", fmt.Errorf("tag name must not be empty")
	}
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, created_at, modified_at, needs_push)
		VALUES (?, ?, ?, ?, ?, 1)`,
		tag.ID, tag.Name, tag.Color, ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("creating tag: %w", err)
	}
	return tag.ID, nil
}

// UpdateTag updates a tag's name and color and marks it dirty.
func (s *SQLiteStore) UpdateTag(ctx context.Context, tag model.Tag) error {
	if strings.TrimSpace(tag.Name) == "" {
		return fmt.Errorf("tag name must not be empty")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tags SET name = ?, color = ?, modified_at = ?, needs_push = 1
		WHERE id = ? AND deleted_at IS NULL`,
		tag.Name, tag.Color, now(), tag.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tag %s: %w", tag.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("tag %s: %w", tag.ID, ErrNotFound)
	}
	return nil
}

// GetTags retrieves all live tags ordered by name.
func (s *SQLiteStore) GetTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE deleted_at IS NULL ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
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

// GetTagsForItem retrieves all live tags linked to a live association on
// the given item.
func (s *SQLiteStore) GetTagsForItem(ctx context.Context, itemID string) ([]model.Tag, error) {
	cols := strings.Split(tagColumns, ",")
	for i, c := range cols {
		cols[i] = "t." + strings.TrimSpace(c)
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+strings.Join(cols, ", ")+` FROM tags t
		INNER JOIN item_tags it ON t.id = it.tag_id
		WHERE it.item_id = ? AND it.deleted_at IS NULL AND t.deleted_at IS NULL
		ORDER BY t.name`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying tags for item %s: %w", itemID, err)
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

// LinkTag associates a tag with an item. Re-linking a tombstoned
// association revives it as a fresh dirty row.
func (s *SQLiteStore) LinkTag(ctx context.Context, itemID, tagID string) error {
	if _, err := s.GetItemByID(ctx, itemID); err != nil {
		return fmt.Errorf("linking tag: %w", err)
	}
	var count int
	if err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM tags WHERE id = ? AND deleted_at IS NULL", tagID); err != nil {
		return fmt.Errorf("checking tag %s: %w", tagID, err)
	}
	if count == 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}

	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_tags (item_id, tag_id, created_at, modified_at, needs_push)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(item_id, tag_id) DO UPDATE SET
			deleted_at = NULL, modified_at = excluded.modified_at, needs_push = 1`,
		itemID, tagID, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("linking tag %s to item %s: %w", tagID, itemID, err)
	}
	return nil
}

// scanTag scans a tag row. The column order matches tagColumns.
func scanTag(row interface{ Scan(dest ...interface{}) error }) (model.Tag, error) {
	var (
		tag          model.Tag
		needsPushInt int
	)

	err := row.Scan(
		&tag.ID, &tag.Name, &tag.Color, &tag.CreatedAt, &tag.ModifiedAt,
		&tag.RemoteRecordRef, &tag.RemoteChangeTag, &needsPushInt,
		&tag.DeletedAt, &tag.RemoteSystemFields,
	)
	if err != nil {
		return model.Tag{}, fmt.Errorf("scanning tag row: %w", err)
	}

	tag.NeedsPush = needsPushInt != 0
	return tag, nil
}

// scanItemTag scans an item_tags row: item_id, tag_id, created_at,
// modified_at, remote_record_ref, remote_change_tag, needs_push,
// deleted_at.
func scanItemTag(row interface{ Scan(dest ...interface{}) error }) (model.ItemTag, error) {
	var (
		link         model.ItemTag
		needsPushInt int
	)

	err := row.Scan(
		&link.ItemID, &link.TagID, &link.CreatedAt, &link.ModifiedAt,
		&link.RemoteRecordRef, &link.RemoteChangeTag, &needsPushInt,
		&link.DeletedAt,
	)
	if err != nil {
		return model.ItemTag{}, fmt.Errorf("scanning item_tag row: %w", err)
	}

	link.NeedsPush = needsPushInt != 0
	return link, nil
}

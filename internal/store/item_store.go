package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zendegi/directgtd/internal/model"
)

// itemColumns is the canonical select list for items. Scan order in
// scanItem must match.
const itemColumns = `id, title, kind, notes, parent_id, sort_order,
	created_at, modified_at, completed_at, due_date, earliest_start_time,
	remote_record_ref, remote_change_tag, needs_push, deleted_at,
	remote_system_fields`

// CreateItem inserts a new item. Generates a UUID if ID is empty and
// returns the item's ID. The row starts dirty so the first sync picks
// it up.
func (s *SQLiteStore) CreateItem(ctx context.Context, item model.Item) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Kind == "" {
		item.Kind = model.KindTask
	}
	ts := now()
	item.CreatedAt = ts
	item.ModifiedAt = ts

	if item.ParentID != nil {
		if _, err := s.GetItemByID(ctx, *item.ParentID); err != nil {
			return "", fmt.Errorf("parent of item %s: %w", item.ID, err)
		}
	}

	// Default sort_order to max+1 among siblings.
	if item.SortOrder == 0 {
		var maxOrder int
		var err error
		if item.ParentID == nil {
			err = s.db.GetContext(ctx, &maxOrder,
				"SELECT COALESCE(MAX(sort_order), 0) FROM items WHERE parent_id IS NULL AND deleted_at IS NULL")
		} else {
			err = s.db.GetContext(ctx, &maxOrder,
				"SELECT COALESCE(MAX(sort_order), 0) FROM items WHERE parent_id = ? AND deleted_at IS NULL",
				*item.ParentID)
		}
		if err != nil {
			return "", fmt.Errorf("getting max sort_order: %w", err)
		}
		item.SortOrder = maxOrder + 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, title, kind, notes, parent_id, sort_order,
			created_at, modified_at, completed_at, due_date, earliest_start_time,
			needs_push
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		item.ID, item.Title, item.Kind, item.Notes, item.ParentID, item.SortOrder,
		item.CreatedAt, item.ModifiedAt, item.CompletedAt, item.DueDate,
		item.EarliestStartTime,
	)
	if err != nil {
		return "", fmt.Errorf("creating item: %w", err)
	}
	return item.ID, nil
}

// UpdateItem updates an item's content and scheduling fields in place and
// marks the row dirty. Hierarchy moves go through MoveItem.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item model.Item) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			title = ?, kind = ?, notes = ?,
			completed_at = ?, due_date = ?, earliest_start_time = ?,
			modified_at = ?, needs_push = 1
		WHERE id = ? AND deleted_at IS NULL`,
		item.Title, item.Kind, item.Notes,
		item.CompletedAt, item.DueDate, item.EarliestStartTime,
		now(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", item.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

// GetItemByID retrieves a single live item by ID, including its tags.
func (s *SQLiteStore) GetItemByID(ctx context.Context, id string) (*model.Item, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE id = ? AND deleted_at IS NULL", id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item %s: %w", id, err)
	}

	tags, err := s.GetTagsForItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading tags for item %s: %w", id, err)
	}
	item.Tags = tags

	return &item, nil
}

// GetItems retrieves live items matching the filter.
func (s *SQLiteStore) GetItems(ctx context.Context, filter ItemFilter) ([]model.Item, error) {
	query, args := buildItemQuery(filter)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
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

// GetChildren returns the live direct children of an item ordered by
// sort_order.
func (s *SQLiteStore) GetChildren(ctx context.Context, parentID string) ([]model.Item, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+itemColumns+` FROM items
		WHERE parent_id = ? AND deleted_at IS NULL
		ORDER BY sort_order`, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying children of %s: %w", parentID, err)
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

// MoveItem changes an item's position in the hierarchy. The new parent
// must be a live item; passing nil moves the item to the root.
func (s *SQLiteStore) MoveItem(ctx context.Context, id string, newParentID *string, newSortOrder int) error {
	if newParentID != nil {
		if _, err := s.GetItemByID(ctx, *newParentID); err != nil {
			return fmt.Errorf("new parent of item %s: %w", id, err)
		}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET parent_id = ?, sort_order = ?, modified_at = ?, needs_push = 1
		WHERE id = ? AND deleted_at IS NULL`,
		newParentID, newSortOrder, now(), id,
	)
	if err != nil {
		return fmt.Errorf("moving item %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteItem sets or clears an item's completion timestamp.
func (s *SQLiteStore) CompleteItem(ctx context.Context, id string, completed bool) error {
	ts := now()
	var completedAt interface{}
	if completed {
		completedAt = ts
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET completed_at = ?, modified_at = ?, needs_push = 1
		WHERE id = ? AND deleted_at IS NULL`,
		completedAt, ts, id,
	)
	if err != nil {
		return fmt.Errorf("completing item %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// buildItemQuery constructs the SQL query and args for an ItemFilter.
func buildItemQuery(filter ItemFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	needsTagJoin := len(filter.TagIDs) > 0

	from := " FROM items"
	if needsTagJoin {
		from += " INNER JOIN item_tags ON items.id = item_tags.item_id AND item_tags.deleted_at IS NULL"
	}

	conditions = append(conditions, "items.deleted_at IS NULL")

	if filter.Kind != nil {
		conditions = append(conditions, "items.kind = ?")
		args = append(args, *filter.Kind)
	}
	if filter.ParentID != nil {
		if *filter.ParentID == "root" {
			conditions = append(conditions, "items.parent_id IS NULL")
		} else {
			conditions = append(conditions, "items.parent_id = ?")
			args = append(args, *filter.ParentID)
		}
	}
	if len(filter.TagIDs) > 0 {
		placeholders := make([]string, len(filter.TagIDs))
		for i, id := range filter.TagIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conditions = append(conditions,
			"item_tags.tag_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(items.title LIKE ? OR items.notes LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q)
	}
	if filter.Completed != nil {
		if *filter.Completed {
			conditions = append(conditions, "items.completed_at IS NOT NULL")
		} else {
			conditions = append(conditions, "items.completed_at IS NULL")
		}
	}

	query := "SELECT " + qualifyItemColumns() + from +
		" WHERE " + strings.Join(conditions, " AND ")

	if needsTagJoin {
		query += " GROUP BY items.id"
	}

	sortBy := "items.sort_order"
	if filter.SortBy != "" {
		allowed := map[string]string{
			"sort_order":  "items.sort_order",
			"due_date":    "items.due_date",
			"created_at":  "items.created_at",
			"modified_at": "items.modified_at",
			"title":       "items.title",
		}
		if col, ok := allowed[filter.SortBy]; ok {
			sortBy = col
		}
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query, args
}

// qualifyItemColumns prefixes every item column with the table name for
// queries that join.
func qualifyItemColumns() string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = "items." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// scanItem scans an item row. The column order matches itemColumns.
func scanItem(row interface{ Scan(dest ...interface{}) error }) (model.Item, error) {
	var (
		item         model.Item
		needsPushInt int
	)

	err := row.Scan(
		&item.ID, &item.Title, &item.Kind, &item.Notes, &item.ParentID,
		&item.SortOrder, &item.CreatedAt, &item.ModifiedAt, &item.CompletedAt,
		&item.DueDate, &item.EarliestStartTime,
		&item.RemoteRecordRef, &item.RemoteChangeTag, &needsPushInt,
		&item.DeletedAt, &item.RemoteSystemFields,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, err
		}
		return model.Item{}, fmt.Errorf("scanning item row: %w", err)
	}

	item.NeedsPush = needsPushInt != 0
	return item, nil
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zendegi/directgtd/internal/model"
)

const savedQueryColumns = `id, name, query_text, sort_order, created_at,
	modified_at, remote_record_ref, remote_change_tag, needs_push,
	deleted_at`

// CreateSavedQuery stores a new saved query and returns its ID. The query
// text is not validated here; it is validated by the sandboxed executor
// every time it runs.
func (s *SQLiteStore) CreateSavedQuery(ctx context.Context, q model.SavedQuery) (string, error) {
	if strings.TrimSpace(q.Name) == "" {
		return "", fmt.Errorf("saved query name must not be empty")
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	ts := now()

	if q.SortOrder == 0 {
		var maxOrder int
		err := s.db.GetContext(ctx, &maxOrder,
			"SELECT COALESCE(MAX(sort_order), 0) FROM saved_queries WHERE deleted_at IS NULL")
		if err != nil {
			return "", fmt.Errorf("getting max sort_order: %w", err)
		}
		q.SortOrder = maxOrder + 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_queries (id, name, query_text, sort_order, created_at, modified_at, needs_push)
		VALUES (?, ?, ?, ?, ?, ?, 1)`,
		q.ID, q.Name, q.QueryText, q.SortOrder, ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("creating saved query: %w", err)
	}
	return q.ID, nil
}

// UpdateSavedQuery updates a saved query's name, text, and order.
func (s *SQLiteStore) UpdateSavedQuery(ctx context.Context, q model.SavedQuery) error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("saved query name must not be empty")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE saved_queries SET name = ?, query_text = ?, sort_order = ?,
			modified_at = ?, needs_push = 1
		WHERE id = ? AND deleted_at IS NULL`,
		q.Name, q.QueryText, q.SortOrder, now(), q.ID,
	)
	if err != nil {
		return fmt.Errorf("updating saved query %s: %w", q.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("saved query %s: %w", q.ID, ErrNotFound)
	}
	return nil
}

// GetSavedQueries retrieves all live saved queries ordered by sort_order.
func (s *SQLiteStore) GetSavedQueries(ctx context.Context) ([]model.SavedQuery, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+savedQueryColumns+` FROM saved_queries
		WHERE deleted_at IS NULL ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("querying saved queries: %w", err)
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

// scanSavedQuery scans a saved query row. The column order matches
// savedQueryColumns.
func scanSavedQuery(row interface{ Scan(dest ...interface{}) error }) (model.SavedQuery, error) {
	var (
		q            model.SavedQuery
		needsPushInt int
	)

	err := row.Scan(
		&q.ID, &q.Name, &q.QueryText, &q.SortOrder, &q.CreatedAt,
		&q.ModifiedAt, &q.RemoteRecordRef, &q.RemoteChangeTag,
		&needsPushInt, &q.DeletedAt,
	)
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("scanning saved query row: %w", err)
	}

	q.NeedsPush = needsPushInt != 0
	return q, nil
}

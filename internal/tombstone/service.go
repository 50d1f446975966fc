// Package tombstone implements cascading soft-delete and physical purge
// of tombstoned rows. Deletions never remove rows directly: every row is
// first marked with deleted_at and needs_push so the remote-sync
// collaborator can propagate the deletion, and only purged once the
// remote has confirmed it.
package tombstone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zendegi/directgtd/internal/store"
)

// DefaultChunkSize bounds how many bound parameters a single cascade
// statement carries, below SQLite's historical 999 parameter limit.
const DefaultChunkSize = 500

// DefaultRetention is how long a confirmed-synced tombstone is kept
// before it becomes a purge candidate.
const DefaultRetention = 30 * 24 * time.Hour

// Config tunes the service. Zero values fall back to the defaults above.
type Config struct {
	ChunkSize int
	Retention time.Duration
	Now       func() time.Time
}

// Service performs cascading soft-deletes and tombstone purges against
// the store's raw execution primitives. One top-level transaction wraps
// each logical operation; a partially-tombstoned subtree is never a
// persisted state.
type Service struct {
	store     *store.SQLiteStore
	chunkSize int
	retention time.Duration
	now       func() time.Time
}

// New creates a tombstone service over the given store.
func New(s *store.SQLiteStore, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	}
	return &Service{
		store:     s,
		chunkSize: cfg.ChunkSize,
		retention: cfg.Retention,
		now:       cfg.Now,
	}
}

// DeleteItem soft-deletes an item and its entire descendant subtree in
// one transaction. Association and time-entry rows across the subtree
// are tombstoned before the item rows themselves, and any row lacking a
// remote record reference first receives a deterministic synthetic one
// so the remote collaborator can still issue a deletion for it.
// Deleting an already-tombstoned item is a no-op.
func (svc *Service) DeleteItem(ctx context.Context, id string) error {
	var deletedAt sql.NullTime
	err := svc.store.DB().GetContext(ctx, &deletedAt,
		"SELECT deleted_at FROM items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking item %s: %w", id, err)
	}
	if deletedAt.Valid {
		return nil
	}

	closure, err := svc.collectSubtree(ctx, id)
	if err != nil {
		return err
	}

	ts := svc.now()
	return svc.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Children and association rows go first: synthetic refs for
		// association rows are derived from the parent identity, which
		// must still be readable as a live row at that point.
		for _, chunk := range chunks(closure, svc.chunkSize) {
			if err := svc.tombstoneItemTags(ctx, tx, chunk, ts); err != nil {
				return err
			}
			if err := svc.tombstoneTimeEntries(ctx, tx, chunk, ts); err != nil {
				return err
			}
		}
		for _, chunk := range chunks(closure, svc.chunkSize) {
			if err := svc.tombstoneItems(ctx, tx, chunk, ts); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTag soft-deletes a tag and every association referencing it.
// Items carrying the tag are untouched.
func (svc *Service) DeleteTag(ctx context.Context, id string) error {
	var deletedAt sql.NullTime
	err := svc.store.DB().GetContext(ctx, &deletedAt,
		"SELECT deleted_at FROM tags WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tag %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking tag %s: %w", id, err)
	}
	if deletedAt.Valid {
		return nil
	}

	ts := svc.now()
	return svc.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := ensureItemTagRefs(ctx, tx,
			"SELECT item_id, tag_id FROM item_tags WHERE tag_id = ? AND deleted_at IS NULL AND remote_record_ref IS NULL",
			id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE item_tags SET deleted_at = ?, needs_push = 1, modified_at = ?
			WHERE tag_id = ? AND deleted_at IS NULL`, ts, ts, id); err != nil {
			return fmt.Errorf("tombstoning associations of tag %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET remote_record_ref = ?
			WHERE id = ? AND remote_record_ref IS NULL`,
			store.SyntheticRemoteRef("tag", id), id); err != nil {
			return fmt.Errorf("ensuring remote ref for tag %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET deleted_at = ?, needs_push = 1, modified_at = ?
			WHERE id = ? AND deleted_at IS NULL`, ts, ts, id); err != nil {
			return fmt.Errorf("tombstoning tag %s: %w", id, err)
		}
		return nil
	})
}

// DeleteItemTag soft-deletes a single tag association.
func (svc *Service) DeleteItemTag(ctx context.Context, itemID, tagID string) error {
	var deletedAt sql.NullTime
	err := svc.store.DB().GetContext(ctx, &deletedAt,
		"SELECT deleted_at FROM item_tags WHERE item_id = ? AND tag_id = ?", itemID, tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item_tag %s/%s: %w", itemID, tagID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking item_tag %s/%s: %w", itemID, tagID, err)
	}
	if deletedAt.Valid {
		return nil
	}

	ts := svc.now()
	return svc.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE item_tags SET remote_record_ref = ?
			WHERE item_id = ? AND tag_id = ? AND remote_record_ref IS NULL`,
			store.SyntheticRemoteRef("item_tag", itemID, tagID), itemID, tagID); err != nil {
			return fmt.Errorf("ensuring remote ref for item_tag %s/%s: %w", itemID, tagID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE item_tags SET deleted_at = ?, needs_push = 1, modified_at = ?
			WHERE item_id = ? AND tag_id = ? AND deleted_at IS NULL`,
			ts, ts, itemID, tagID); err != nil {
			return fmt.Errorf("tombstoning item_tag %s/%s: %w", itemID, tagID, err)
		}
		return nil
	})
}

// collectSubtree walks the parent-link relation breadth-first, starting
// at root, restricted to live rows. Returns root plus all descendants.
func (svc *Service) collectSubtree(ctx context.Context, root string) ([]string, error) {
	closure := []string{root}
	frontier := []string{root}

	for len(frontier) > 0 {
		var next []string
		for _, chunk := range chunks(frontier, svc.chunkSize) {
			query, args, err := sqlx.In(
				"SELECT id FROM items WHERE parent_id IN (?) AND deleted_at IS NULL", chunk)
			if err != nil {
				return nil, fmt.Errorf("building subtree query: %w", err)
			}
			var children []string
			if err := svc.store.DB().SelectContext(ctx, &children, query, args...); err != nil {
				return nil, fmt.Errorf("collecting descendants: %w", err)
			}
			next = append(next, children...)
		}
		closure = append(closure, next...)
		frontier = next
	}

	return closure, nil
}

// tombstoneItemTags applies the two-phase update to every live
// association whose item is in the chunk.
func (svc *Service) tombstoneItemTags(ctx context.Context, tx *sqlx.Tx, chunk []string, ts time.Time) error {
	query, args, err := sqlx.In(
		"SELECT item_id, tag_id FROM item_tags WHERE item_id IN (?) AND deleted_at IS NULL AND remote_record_ref IS NULL",
		chunk)
	if err != nil {
		return fmt.Errorf("building association query: %w", err)
	}
	if err := ensureItemTagRefs(ctx, tx, query, args...); err != nil {
		return err
	}

	query, args, err = sqlx.In(
		"UPDATE item_tags SET deleted_at = ?, needs_push = 1, modified_at = ? WHERE item_id IN (?) AND deleted_at IS NULL",
		ts, ts, chunk)
	if err != nil {
		return fmt.Errorf("building association update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("tombstoning associations: %w", err)
	}
	return nil
}

// tombstoneTimeEntries applies the two-phase update to every live time
// entry whose item is in the chunk.
func (svc *Service) tombstoneTimeEntries(ctx context.Context, tx *sqlx.Tx, chunk []string, ts time.Time) error {
	query, args, err := sqlx.In(
		"SELECT id FROM time_entries WHERE item_id IN (?) AND deleted_at IS NULL AND remote_record_ref IS NULL",
		chunk)
	if err != nil {
		return fmt.Errorf("building time entry query: %w", err)
	}
	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return fmt.Errorf("listing unreferenced time entries: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"UPDATE time_entries SET remote_record_ref = ? WHERE id = ?",
			store.SyntheticRemoteRef("time_entry", id), id); err != nil {
			return fmt.Errorf("ensuring remote ref for time entry %s: %w", id, err)
		}
	}

	query, args, err = sqlx.In(
		"UPDATE time_entries SET deleted_at = ?, needs_push = 1, modified_at = ? WHERE item_id IN (?) AND deleted_at IS NULL",
		ts, ts, chunk)
	if err != nil {
		return fmt.Errorf("building time entry update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("tombstoning time entries: %w", err)
	}
	return nil
}

// tombstoneItems applies the two-phase update to the item rows in the
// chunk. Runs only after every referencing table has been handled.
func (svc *Service) tombstoneItems(ctx context.Context, tx *sqlx.Tx, chunk []string, ts time.Time) error {
	query, args, err := sqlx.In(
		"SELECT id FROM items WHERE id IN (?) AND remote_record_ref IS NULL", chunk)
	if err != nil {
		return fmt.Errorf("building item query: %w", err)
	}
	var ids []string
	if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
		return fmt.Errorf("listing unreferenced items: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"UPDATE items SET remote_record_ref = ? WHERE id = ?",
			store.SyntheticRemoteRef("item", id), id); err != nil {
			return fmt.Errorf("ensuring remote ref for item %s: %w", id, err)
		}
	}

	query, args, err = sqlx.In(
		"UPDATE items SET deleted_at = ?, needs_push = 1, modified_at = ? WHERE id IN (?) AND deleted_at IS NULL",
		ts, ts, chunk)
	if err != nil {
		return fmt.Errorf("building item update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("tombstoning items: %w", err)
	}
	return nil
}

// ensureItemTagRefs assigns synthetic remote refs to the associations
// matched by the given select, which must yield (item_id, tag_id) pairs.
func ensureItemTagRefs(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("listing unreferenced associations: %w", err)
	}
	defer rows.Close()

	type pair struct{ itemID, tagID string }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.itemID, &p.tagID); err != nil {
			return fmt.Errorf("scanning association identity: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx,
			"UPDATE item_tags SET remote_record_ref = ? WHERE item_id = ? AND tag_id = ?",
			store.SyntheticRemoteRef("item_tag", p.itemID, p.tagID), p.itemID, p.tagID); err != nil {
			return fmt.Errorf("ensuring remote ref for item_tag %s/%s: %w", p.itemID, p.tagID, err)
		}
	}
	return nil
}

// chunks splits ids into slices of at most size elements.
func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

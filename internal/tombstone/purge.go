package tombstone

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PurgeStats counts the rows physically removed by one purge pass.
type PurgeStats struct {
	ItemTags    int64
	TimeEntries int64
	Items       int64
	Tags        int64
}

// Total returns the total number of rows removed.
func (p PurgeStats) Total() int64 {
	return p.ItemTags + p.TimeEntries + p.Items + p.Tags
}

// purgeCandidate is the predicate for retention-based purge: the row is
// a tombstone, the remote collaborator has confirmed it (needs_push
// cleared), it carries the remote ref the collaborator needs to issue
// the remote deletion, and it is older than the retention window.
const purgeCandidate = `deleted_at IS NOT NULL
	AND needs_push = 0
	AND remote_record_ref IS NOT NULL
	AND deleted_at < ?`

// Purge physically removes tombstones that are confirmed synced and
// older than the retention window, in one transaction. Association and
// detail tables go first; items are removed in repeated leaf passes so
// no row is ever deleted while another item still references it as a
// parent; tags go last and only when no association row at all still
// references them.
func (svc *Service) Purge(ctx context.Context) (PurgeStats, error) {
	cutoff := svc.now().Add(-svc.retention)
	var stats PurgeStats

	err := svc.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM item_tags WHERE "+purgeCandidate, cutoff)
		if err != nil {
			return fmt.Errorf("purging item_tags: %w", err)
		}
		stats.ItemTags, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			"DELETE FROM time_entries WHERE "+purgeCandidate, cutoff)
		if err != nil {
			return fmt.Errorf("purging time_entries: %w", err)
		}
		stats.TimeEntries, _ = res.RowsAffected()

		n, err := purgeLeafItems(ctx, tx, purgeCandidate, cutoff)
		if err != nil {
			return err
		}
		stats.Items = n

		res, err = tx.ExecContext(ctx, `
			DELETE FROM tags WHERE `+purgeCandidate+`
			AND NOT EXISTS (SELECT 1 FROM item_tags WHERE item_tags.tag_id = tags.id)`,
			cutoff)
		if err != nil {
			return fmt.Errorf("purging tags: %w", err)
		}
		stats.Tags, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return PurgeStats{}, err
	}
	return stats, nil
}

// hardCandidate ignores needs_push: administrative cleanup removes rows
// the remote may never acknowledge.
const hardCandidate = `deleted_at IS NOT NULL AND deleted_at < ?`

// HardPurge removes every tombstone older than cutoff regardless of sync
// state. Items are removed in repeated passes taking only current
// leaves, which handles arbitrarily deep hierarchies without recursion.
func (svc *Service) HardPurge(ctx context.Context, cutoff time.Time) (PurgeStats, error) {
	var stats PurgeStats

	err := svc.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM item_tags WHERE "+hardCandidate, cutoff)
		if err != nil {
			return fmt.Errorf("hard-purging item_tags: %w", err)
		}
		stats.ItemTags, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			"DELETE FROM time_entries WHERE "+hardCandidate, cutoff)
		if err != nil {
			return fmt.Errorf("hard-purging time_entries: %w", err)
		}
		stats.TimeEntries, _ = res.RowsAffected()

		n, err := purgeLeafItems(ctx, tx, hardCandidate, cutoff)
		if err != nil {
			return err
		}
		stats.Items = n

		res, err = tx.ExecContext(ctx, `
			DELETE FROM tags WHERE `+hardCandidate+`
			AND NOT EXISTS (SELECT 1 FROM item_tags WHERE item_tags.tag_id = tags.id)`,
			cutoff)
		if err != nil {
			return fmt.Errorf("hard-purging tags: %w", err)
		}
		stats.Tags, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return PurgeStats{}, err
	}
	return stats, nil
}

// purgeLeafItems deletes candidate items in repeated passes, each pass
// taking only rows that nothing references anymore: no item row (live or
// tombstoned) has them as parent, and no association or time-entry row
// points at them. Loops until a pass removes nothing.
func purgeLeafItems(ctx context.Context, tx *sqlx.Tx, candidate string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM items WHERE `+candidate+`
			AND NOT EXISTS (SELECT 1 FROM items c WHERE c.parent_id = items.id)
			AND NOT EXISTS (SELECT 1 FROM item_tags it WHERE it.item_id = items.id)
			AND NOT EXISTS (SELECT 1 FROM time_entries te WHERE te.item_id = items.id)`,
			cutoff)
		if err != nil {
			return total, fmt.Errorf("purging items: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

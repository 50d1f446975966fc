package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is a single named schema change. Steps are idempotent
// (check-before-alter) so an interrupted run can be retried safely, and
// are applied in version order exactly once.
type migration struct {
	version int
	name    string
	apply   func(tx *sqlx.Tx) error
}

// migrations is the full ordered history of the schema. Never reorder or
// edit shipped entries; append instead.
var migrations = []migration{
	{1, "baseline schema", migrateBaseline},
	{2, "create time_entries", migrateTimeEntries},
	{3, "create saved_queries", migrateSavedQueries},
	{4, "add item scheduling columns", migrateSchedulingColumns},
	{5, "index items parent_id", migrateParentIndex},
	{6, "drop items archived column", migrateDropArchived},
	{7, "add sync tracking", migrateSyncTracking},
}

// migrateBaseline creates the original pre-sync schema: items, tags,
// item_tags, and the app_settings key/value table. Foreign keys still
// cascade here; v7 rebuilds these tables to remove that.
func migrateBaseline(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	title       TEXT,
	kind        TEXT NOT NULL DEFAULT 'Task',
	notes       TEXT,
	parent_id   TEXT REFERENCES items(id) ON DELETE CASCADE,
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	completed_at DATETIME,
	archived    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	color      TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS item_tags (
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (item_id, tag_id)
);

CREATE TABLE IF NOT EXISTS app_settings (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`)
	return err
}

func migrateTimeEntries(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS time_entries (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	started_at DATETIME NOT NULL,
	ended_at   DATETIME,
	duration   REAL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_time_entries_item_id ON time_entries(item_id);
`)
	return err
}

func migrateSavedQueries(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS saved_queries (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	query_text  TEXT NOT NULL,
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL
);
`)
	return err
}

func migrateSchedulingColumns(tx *sqlx.Tx) error {
	if err := addColumnIfMissing(tx, "items", "due_date", "DATETIME"); err != nil {
		return err
	}
	return addColumnIfMissing(tx, "items", "earliest_start_time", "DATETIME")
}

func migrateParentIndex(tx *sqlx.Tx) error {
	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_items_parent_id ON items(parent_id)")
	return err
}

// migrateDropArchived removes the unused archived column. SQLite cannot
// drop a column in place on older versions, so the table is rebuilt and
// swapped, preserving all rows.
func migrateDropArchived(tx *sqlx.Tx) error {
	exists, err := columnExists(tx, "items", "archived")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	_, err = tx.Exec(`
CREATE TABLE items_new (
	id          TEXT PRIMARY KEY,
	title       TEXT,
	kind        TEXT NOT NULL DEFAULT 'Task',
	notes       TEXT,
	parent_id   TEXT REFERENCES items(id) ON DELETE CASCADE,
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	completed_at DATETIME,
	due_date    DATETIME,
	earliest_start_time DATETIME
);

INSERT INTO items_new (id, title, kind, notes, parent_id, sort_order,
	created_at, modified_at, completed_at, due_date, earliest_start_time)
SELECT id, title, kind, notes, parent_id, sort_order,
	created_at, modified_at, completed_at, due_date, earliest_start_time
FROM items;

DROP TABLE items;
ALTER TABLE items_new RENAME TO items;

CREATE INDEX IF NOT EXISTS idx_items_parent_id ON items(parent_id);
`)
	return err
}

// syncedTables lists every table that carries sync-tracking fields, with
// the identity columns used to derive synthetic remote refs.
var syncedTables = []struct {
	name       string
	refPrefix  string
	idColumns  []string
	hasSysBlob bool
}{
	{"items", "item", []string{"id"}, true},
	{"tags", "tag", []string{"id"}, true},
	{"item_tags", "item_tag", []string{"item_id", "tag_id"}, false},
	{"time_entries", "time_entry", []string{"id"}, false},
	{"saved_queries", "saved_query", []string{"id"}, false},
}

// migrateSyncTracking is the major step that introduces remote sync
// support. It must:
//
//	(a) add modified_at where absent, backfilled from created_at,
//	(b) add the sync-tracking columns to every synced table,
//	(c) create partial unique indexes on remote_record_ref,
//	(d) create partial indexes on needs_push for dirty-row queries,
//	(e) rebuild the cascade-bearing tables without ON DELETE CASCADE
//	    (an automatic physical cascade would destroy rows the sync
//	    collaborator still needs to see as tombstones),
//	(f) bootstrap pre-existing rows with deterministic synthetic remote
//	    refs and mark everything dirty for first sync.
func migrateSyncTracking(tx *sqlx.Tx) error {
	// (a) timestamp columns.
	for _, table := range []string{"tags", "item_tags", "time_entries"} {
		if err := addColumnIfMissing(tx, table, "modified_at", "DATETIME"); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(
			"UPDATE %s SET modified_at = created_at WHERE modified_at IS NULL", table)); err != nil {
			return fmt.Errorf("backfilling %s.modified_at: %w", table, err)
		}
	}

	// (b) sync columns.
	for _, t := range syncedTables {
		if err := addColumnIfMissing(tx, t.name, "remote_record_ref", "TEXT"); err != nil {
			return err
		}
		if err := addColumnIfMissing(tx, t.name, "remote_change_tag", "TEXT"); err != nil {
			return err
		}
		if err := addColumnIfMissing(tx, t.name, "needs_push", "INTEGER NOT NULL DEFAULT 1"); err != nil {
			return err
		}
		if err := addColumnIfMissing(tx, t.name, "deleted_at", "DATETIME"); err != nil {
			return err
		}
		if t.hasSysBlob {
			if err := addColumnIfMissing(tx, t.name, "remote_system_fields", "BLOB"); err != nil {
				return err
			}
		}
	}

	// (e) drop native cascade from the three cascade-bearing tables.
	if err := rebuildItemsWithoutCascade(tx); err != nil {
		return err
	}
	if err := rebuildItemTagsWithoutCascade(tx); err != nil {
		return err
	}
	if err := rebuildTimeEntriesWithoutCascade(tx); err != nil {
		return err
	}

	// (c) + (d) indexes, after the rebuilds so they land on the final tables.
	for _, t := range syncedTables {
		if _, err := tx.Exec(fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_remote_ref
				ON %s(remote_record_ref) WHERE remote_record_ref IS NOT NULL`,
			t.name, t.name)); err != nil {
			return fmt.Errorf("indexing %s.remote_record_ref: %w", t.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_needs_push
				ON %s(needs_push) WHERE needs_push = 1`,
			t.name, t.name)); err != nil {
			return fmt.Errorf("indexing %s.needs_push: %w", t.name, err)
		}
	}

	// (f) bootstrap every pre-existing row.
	for _, t := range syncedTables {
		if err := bootstrapSyntheticRefs(tx, t.name, t.refPrefix, t.idColumns); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET needs_push = 1", t.name)); err != nil {
			return fmt.Errorf("marking %s dirty: %w", t.name, err)
		}
	}

	return nil
}

// bootstrapSyntheticRefs assigns a deterministic remote_record_ref to
// every row that lacks one, derived from the table's identity columns.
func bootstrapSyntheticRefs(tx *sqlx.Tx, table, prefix string, idColumns []string) error {
	selectCols := ""
	for i, c := range idColumns {
		if i > 0 {
			selectCols += ", "
		}
		selectCols += c
	}

	rows, err := tx.Query(fmt.Sprintf(
		"SELECT %s FROM %s WHERE remote_record_ref IS NULL", selectCols, table))
	if err != nil {
		return fmt.Errorf("listing unreferenced %s rows: %w", table, err)
	}
	defer rows.Close()

	var identities [][]string
	for rows.Next() {
		ids := make([]string, len(idColumns))
		dest := make([]interface{}, len(idColumns))
		for i := range ids {
			dest[i] = &ids[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning %s identity: %w", table, err)
		}
		identities = append(identities, ids)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	where := ""
	for i, c := range idColumns {
		if i > 0 {
			where += " AND "
		}
		where += c + " = ?"
	}
	update := fmt.Sprintf("UPDATE %s SET remote_record_ref = ? WHERE %s", table, where)

	for _, ids := range identities {
		ref := SyntheticRemoteRef(append([]string{prefix}, ids...)...)
		args := make([]interface{}, 0, len(ids)+1)
		args = append(args, ref)
		for _, id := range ids {
			args = append(args, id)
		}
		if _, err := tx.Exec(update, args...); err != nil {
			return fmt.Errorf("bootstrapping %s remote ref: %w", table, err)
		}
	}

	return nil
}

func rebuildItemsWithoutCascade(tx *sqlx.Tx) error {
	cascades, err := tableUsesCascade(tx, "items")
	if err != nil {
		return err
	}
	if !cascades {
		return nil
	}

	_, err = tx.Exec(`
CREATE TABLE items_new (
	id          TEXT PRIMARY KEY,
	title       TEXT,
	kind        TEXT NOT NULL DEFAULT 'Task',
	notes       TEXT,
	parent_id   TEXT REFERENCES items(id),
	sort_order  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	completed_at DATETIME,
	due_date    DATETIME,
	earliest_start_time DATETIME,
	remote_record_ref TEXT,
	remote_change_tag TEXT,
	needs_push  INTEGER NOT NULL DEFAULT 1,
	deleted_at  DATETIME,
	remote_system_fields BLOB
);

INSERT INTO items_new (id, title, kind, notes, parent_id, sort_order,
	created_at, modified_at, completed_at, due_date, earliest_start_time,
	remote_record_ref, remote_change_tag, needs_push, deleted_at,
	remote_system_fields)
SELECT id, title, kind, notes, parent_id, sort_order,
	created_at, modified_at, completed_at, due_date, earliest_start_time,
	remote_record_ref, remote_change_tag, needs_push, deleted_at,
	remote_system_fields
FROM items;

DROP TABLE items;
ALTER TABLE items_new RENAME TO items;

CREATE INDEX IF NOT EXISTS idx_items_parent_id ON items(parent_id);
`)
	if err != nil {
		return fmt.Errorf("rebuilding items: %w", err)
	}
	return nil
}

func rebuildItemTagsWithoutCascade(tx *sqlx.Tx) error {
	cascades, err := tableUsesCascade(tx, "item_tags")
	if err != nil {
		return err
	}
	if !cascades {
		return nil
	}

	_, err = tx.Exec(`
CREATE TABLE item_tags_new (
	item_id     TEXT NOT NULL REFERENCES items(id),
	tag_id      TEXT NOT NULL REFERENCES tags(id),
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	remote_record_ref TEXT,
	remote_change_tag TEXT,
	needs_push  INTEGER NOT NULL DEFAULT 1,
	deleted_at  DATETIME,
	PRIMARY KEY (item_id, tag_id)
);

INSERT INTO item_tags_new (item_id, tag_id, created_at, modified_at,
	remote_record_ref, remote_change_tag, needs_push, deleted_at)
SELECT item_id, tag_id, created_at, modified_at,
	remote_record_ref, remote_change_tag, needs_push, deleted_at
FROM item_tags;

DROP TABLE item_tags;
ALTER TABLE item_tags_new RENAME TO item_tags;
`)
	if err != nil {
		return fmt.Errorf("rebuilding item_tags: %w", err)
	}
	return nil
}

func rebuildTimeEntriesWithoutCascade(tx *sqlx.Tx) error {
	cascades, err := tableUsesCascade(tx, "time_entries")
	if err != nil {
		return err
	}
	if !cascades {
		return nil
	}

	_, err = tx.Exec(`
CREATE TABLE time_entries_new (
	id          TEXT PRIMARY KEY,
	item_id     TEXT NOT NULL REFERENCES items(id),
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME,
	duration    REAL,
	created_at  DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	remote_record_ref TEXT,
	remote_change_tag TEXT,
	needs_push  INTEGER NOT NULL DEFAULT 1,
	deleted_at  DATETIME
);

INSERT INTO time_entries_new (id, item_id, started_at, ended_at, duration,
	created_at, modified_at, remote_record_ref, remote_change_tag,
	needs_push, deleted_at)
SELECT id, item_id, started_at, ended_at, duration,
	created_at, modified_at, remote_record_ref, remote_change_tag,
	needs_push, deleted_at
FROM time_entries;

DROP TABLE time_entries;
ALTER TABLE time_entries_new RENAME TO time_entries;

CREATE INDEX IF NOT EXISTS idx_time_entries_item_id ON time_entries(item_id);
`)
	if err != nil {
		return fmt.Errorf("rebuilding time_entries: %w", err)
	}
	return nil
}

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// syncNamespace is the fixed UUID namespace for deterministic synthetic
// remote record references. Rows that were created before sync tracking
// existed (and association rows that never got a remote identity) are
// assigned a ref derived from their local identity, so the remote
// collaborator can still issue a deletion for them after local purge
// eligibility. Must never change once shipped.
var syncNamespace = uuid.MustParse("8f6f11b4-4f6e-4b8a-9c3e-1d2a7c5e9b01")

// SyntheticRemoteRef builds a deterministic remote record reference from
// a row's local identity. The same parts always produce the same ref.
func SyntheticRemoteRef(parts ...string) string {
	return uuid.NewSHA1(syncNamespace, []byte(strings.Join(parts, ":"))).String()
}

// legacyTables are the pre-migration-framework DirectGTD tables, listed in
// reverse dependency order: association and detail tables first, root
// entity tables last. Their presence without schema_migrations metadata
// identifies an installation that predates the migration framework.
var legacyTables = []string{
	"list_items",
	"task_tags",
	"note_tags",
	"tasks",
	"notes",
	"lists",
}

// runMigrations brings the schema to the latest known version. Each
// unapplied step runs exactly once, in order, inside its own transaction.
// On a store with no migration metadata it first detects and resets any
// pre-framework legacy schema.
func (s *SQLiteStore) runMigrations() error {
	tracked, err := s.tableExists("schema_migrations")
	if err != nil {
		return fmt.Errorf("checking migration metadata: %w", err)
	}

	if !tracked {
		if err := s.repairLegacyState(); err != nil {
			return fmt.Errorf("repairing legacy state: %w", err)
		}
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    INTEGER PRIMARY KEY,
				name       TEXT NOT NULL,
				applied_at DATETIME NOT NULL
			)`); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}
	}

	applied := map[int]bool{}
	var versions []int
	if err := s.db.Select(&versions, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	for _, v := range versions {
		applied[v] = true
	}

	// Table rebuilds drop and recreate referenced tables; foreign key
	// enforcement must be off for the whole run. The pragma is a no-op
	// inside a transaction, so it brackets the step loop.
	if _, err := s.db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer s.db.Exec("PRAGMA foreign_keys=ON")

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// applyMigration runs a single step and its bookkeeping insert inside one
// transaction, so a failed step leaves no trace.
func (s *SQLiteStore) applyMigration(m migration) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.version, m.name, time.Now().UTC()); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// repairLegacyState handles stores that predate the migration framework.
// If any known legacy table is present, every legacy table and its
// triggers are dropped (inner tables first) with referential integrity
// disabled; the versioned migration list then recreates the schema from
// scratch. A store with neither metadata nor legacy tables is a fresh
// install and needs no repair.
func (s *SQLiteStore) repairLegacyState() error {
	found := false
	for _, name := range legacyTables {
		exists, err := s.tableExists(name)
		if err != nil {
			return err
		}
		if exists {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer s.db.Exec("PRAGMA foreign_keys=ON")

	// Legacy triggers first: a trigger on a dropped table goes away with
	// it, but triggers on surviving tables that reference legacy tables
	// would break every later write.
	var triggers []string
	query, args, err := sqlx.In(
		"SELECT name FROM sqlite_master WHERE type = 'trigger' AND tbl_name IN (?)",
		legacyTables)
	if err != nil {
		return fmt.Errorf("building trigger query: %w", err)
	}
	if err := s.db.Select(&triggers, query, args...); err != nil {
		return fmt.Errorf("listing legacy triggers: %w", err)
	}
	for _, name := range triggers {
		if _, err := s.db.Exec(fmt.Sprintf("DROP TRIGGER IF EXISTS %q", name)); err != nil {
			return fmt.Errorf("dropping trigger %s: %w", name, err)
		}
	}

	for _, name := range legacyTables {
		if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
			return fmt.Errorf("dropping legacy table %s: %w", name, err)
		}
	}

	return nil
}

// tableExists reports whether a table is present in sqlite_master.
func (s *SQLiteStore) tableExists(name string) (bool, error) {
	var count int
	err := s.db.Get(&count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return count > 0, nil
}

// columnExists reports whether a column is present on a table.
func columnExists(tx *sqlx.Tx, table, column string) (bool, error) {
	var count int
	err := tx.Get(&count,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

// addColumnIfMissing issues ALTER TABLE ... ADD COLUMN only when the
// column is absent, keeping the step safe to re-run.
func addColumnIfMissing(tx *sqlx.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

// tableUsesCascade reports whether a table's stored definition still
// carries native ON DELETE CASCADE clauses.
func tableUsesCascade(tx *sqlx.Tx, table string) (bool, error) {
	var sql string
	err := tx.Get(&sql,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, fmt.Errorf("reading definition of %s: %w", table, err)
	}
	return strings.Contains(strings.ToUpper(sql), "ON DELETE CASCADE"), nil
}

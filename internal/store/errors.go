package store

import "errors"

var (
	// ErrStoreUnavailable is returned when an operation is attempted
	// before the store handle has been initialized.
	ErrStoreUnavailable = errors.New("store not initialized")

	// ErrMigrationFailed wraps any schema migration step failure. The
	// process must not continue with a partially-migrated schema, so
	// Open surfaces this as fatal.
	ErrMigrationFailed = errors.New("schema migration failed")

	// ErrNotFound is returned when a required row (an item, a tag, a
	// parent reference) does not exist.
	ErrNotFound = errors.New("not found")
)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"starweave/internal/logging"
)

// Schema versions:
// v1: concepts, modules, orchestrator, schema_meta
const SchemaVersion = 1

// ErrSchemaVersion is returned when a snapshot was written by an
// incompatible schema.
var ErrSchemaVersion = errors.New("unsupported snapshot schema version")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL,
		saved_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS concepts (
		position INTEGER NOT NULL,
		name TEXT PRIMARY KEY,
		vector TEXT NOT NULL,
		state0 REAL NOT NULL,
		state1 REAL NOT NULL,
		threshold REAL NOT NULL,
		last_interaction INTEGER NOT NULL,
		curiosity REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS modules (
		position INTEGER NOT NULL,
		name TEXT PRIMARY KEY,
		co_creation_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orchestrator (
		propensity REAL NOT NULL
	)`,
}

// ensureSchema creates any missing tables.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	logging.StoreDebug("Schema ensured (version %d)", SchemaVersion)
	return nil
}

// storedVersion returns the version recorded in schema_meta, or false when
// nothing has been saved yet.
func storedVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_meta LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, true, nil
}

// Package store persists agent snapshots in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"starweave/internal/concepts"
	"starweave/internal/logging"
)

// ModuleRecord is the persisted state of one module agent.
type ModuleRecord struct {
	Name            string `json:"name"`
	CoCreationCount uint64 `json:"co_creation_count"`
}

// Snapshot is the minimal persisted state of an agent core.
type Snapshot struct {
	Version    int                      `json:"version"`
	SavedAt    time.Time                `json:"saved_at"`
	Concepts   []concepts.ConceptVector `json:"concepts"`
	Modules    []ModuleRecord           `json:"modules"`
	Propensity float64                  `json:"propensity"`
}

// SnapshotStore reads and writes snapshots to a SQLite file.
// Each Save replaces the previous snapshot.
type SnapshotStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open opens (or creates) the snapshot database at path.
func Open(ctx context.Context, path string) (*SnapshotStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening snapshot store at %s", path)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *SnapshotStore) Path() string {
	return s.dbPath
}

// Save writes snap in a single transaction, replacing any earlier snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "Save")
	defer timer.Stop()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"schema_meta", "concepts", "modules", "orchestrator"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_meta (version, saved_at) VALUES (?, ?)",
		SchemaVersion, savedAt.Unix()); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	for i, c := range snap.Concepts {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO concepts (position, name, vector, state0, state1, threshold, last_interaction, curiosity)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, c.Name, encodeVector(c.Vector), c.State[0], c.State[1], c.Threshold, c.LastInteraction, c.CuriosityScore); err != nil {
			return fmt.Errorf("failed to write concept %s: %w", c.Name, err)
		}
	}

	for i, m := range snap.Modules {
		if _, err = tx.ExecContext(ctx, "INSERT INTO modules (position, name, co_creation_count) VALUES (?, ?, ?)",
			i, m.Name, int64(m.CoCreationCount)); err != nil {
			return fmt.Errorf("failed to write module %s: %w", m.Name, err)
		}
	}

	if _, err = tx.ExecContext(ctx, "INSERT INTO orchestrator (propensity) VALUES (?)", snap.Propensity); err != nil {
		return fmt.Errorf("failed to write propensity: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logging.Store("Snapshot saved: %d concepts, %d modules, propensity=%.2f",
		len(snap.Concepts), len(snap.Modules), snap.Propensity)
	return nil
}

// Load reads the stored snapshot. The bool is false when nothing was saved.
// A snapshot from a different schema version fails with ErrSchemaVersion.
func (s *SnapshotStore) Load(ctx context.Context) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, ok, err := storedVersion(ctx, s.db)
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	if version != SchemaVersion {
		logging.StoreError("Snapshot schema version %d, expected %d", version, SchemaVersion)
		return Snapshot{}, false, fmt.Errorf("%w: found %d, expected %d", ErrSchemaVersion, version, SchemaVersion)
	}

	snap := Snapshot{Version: version}

	var savedAt int64
	if err := s.db.QueryRowContext(ctx, "SELECT saved_at FROM schema_meta LIMIT 1").Scan(&savedAt); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to read snapshot time: %w", err)
	}
	snap.SavedAt = time.Unix(savedAt, 0)

	if snap.Concepts, err = s.loadConcepts(ctx); err != nil {
		return Snapshot{}, false, err
	}
	if snap.Modules, err = s.loadModules(ctx); err != nil {
		return Snapshot{}, false, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT propensity FROM orchestrator LIMIT 1").Scan(&snap.Propensity); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to read propensity: %w", err)
	}

	logging.StoreDebug("Snapshot loaded: %d concepts, %d modules", len(snap.Concepts), len(snap.Modules))
	return snap, true, nil
}

func (s *SnapshotStore) loadConcepts(ctx context.Context) ([]concepts.ConceptVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, vector, state0, state1, threshold, last_interaction, curiosity
		 FROM concepts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var out []concepts.ConceptVector
	for rows.Next() {
		var c concepts.ConceptVector
		var vec []byte
		if err := rows.Scan(&c.Name, &vec, &c.State[0], &c.State[1], &c.Threshold, &c.LastInteraction, &c.CuriosityScore); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		if c.Vector, err = parseVector(vec, nil); err != nil {
			return nil, fmt.Errorf("failed to decode vector for %s: %w", c.Name, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SnapshotStore) loadModules(ctx context.Context) ([]ModuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, co_creation_count FROM modules ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	var out []ModuleRecord
	for rows.Next() {
		var m ModuleRecord
		var count int64
		if err := rows.Scan(&m.Name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		m.CoCreationCount = uint64(count)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.StoreDebug("Closing snapshot store %s", s.dbPath)
	return s.db.Close()
}

/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store plus the container CRUD used by the HTTP layer.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  containers: One row per work item; carries the status, the optimistic
              version stamp, and the four rollup counters (the cached
              StatsSnapshot).
  entries:    Time entries, keyed by (container_id, kind). A ledger is
              replaced wholesale inside one transaction together with the
              version bump, so concurrent writers cannot interleave.

OPTIMISTIC CONCURRENCY:
  ReplaceLedger and UpdateStatus bump containers.version and fail with
  engine.ErrConcurrentModification when the caller's expected version is
  stale. Snapshot writes are full overwrites and skip the version check.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/boards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/engine.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/task-ledger/engine"
	"github.com/warp/task-ledger/hierarchy"
	"github.com/warp/task-ledger/ledger"
)

// Store implements engine.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS containers (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		parent_id TEXT,
		board_id TEXT NOT NULL DEFAULT '',
		list_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		version INTEGER NOT NULL DEFAULT 0,
		child_total INTEGER NOT NULL DEFAULT 0,
		child_completed INTEGER NOT NULL DEFAULT 0,
		grandchild_total INTEGER NOT NULL DEFAULT 0,
		grandchild_completed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_containers_parent
		ON containers(parent_id) WHERE parent_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_containers_level
		ON containers(level);
	CREATE INDEX IF NOT EXISTS idx_containers_board
		ON containers(board_id);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		container_id TEXT NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		owner TEXT NOT NULL,
		owner_name TEXT NOT NULL DEFAULT '',
		minutes INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		occurred_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_container_kind
		ON entries(container_id, kind);

	-- Supports per-owner daily totals, used by reporting.
	CREATE INDEX IF NOT EXISTS idx_entries_owner_day
		ON entries(owner, occurred_on);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONTAINER CRUD
// =============================================================================

const containerColumns = `id, level, parent_id, board_id, list_id, title, status, version,
	child_total, child_completed, grandchild_total, grandchild_completed`

// CreateContainer inserts a new container with empty ledgers.
func (s *Store) CreateContainer(ctx context.Context, c hierarchy.Container) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var parent any
	if c.ParentID != "" {
		parent = string(c.ParentID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (id, level, parent_id, board_id, list_id, title, status, version,
			child_total, child_completed, grandchild_total, grandchild_completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.Level), parent, c.BoardID, c.ListID, c.Title, string(c.Status), c.Version,
		c.Stats.ChildTotal, c.Stats.ChildCompleted, c.Stats.GrandchildTotal, c.Stats.GrandchildCompleted,
		now, now)
	if err != nil {
		return fmt.Errorf("failed to insert container: %w", err)
	}
	return nil
}

// DeleteContainer removes a container and its whole subtree. The caller
// recomputes the now-stale parent snapshot.
func (s *Store) DeleteContainer(ctx context.Context, id hierarchy.ContainerID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM containers WHERE id = ?
			UNION ALL
			SELECT c.id FROM containers c JOIN subtree s ON c.parent_id = s.id
		)
		DELETE FROM containers WHERE id IN (SELECT id FROM subtree)`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrContainerNotFound
	}
	return tx.Commit()
}

// LoadContainer returns the container or engine.ErrContainerNotFound.
func (s *Store) LoadContainer(ctx context.Context, id hierarchy.ContainerID) (*hierarchy.Container, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE id = ?`, string(id))
	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrContainerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load container: %w", err)
	}
	return c, nil
}

// ListContainers returns all containers at one level, ordered by ID.
func (s *Store) ListContainers(ctx context.Context, level hierarchy.Level) ([]hierarchy.Container, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE level = ? ORDER BY id`, string(level))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()
	return collectContainers(rows)
}

// Children returns the direct children of parent, ordered by ID.
func (s *Store) Children(ctx context.Context, parent hierarchy.ContainerID) ([]hierarchy.Container, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE parent_id = ? ORDER BY id`, string(parent))
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()
	return collectContainers(rows)
}

// =============================================================================
// LEDGERS
// =============================================================================

// LoadLedger returns the persisted ledger of one kind.
func (s *Store) LoadLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind) ([]ledger.TimeEntry, error) {
	if _, err := s.LoadContainer(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, owner_name, minutes, note, occurred_on
		FROM entries WHERE container_id = ? AND kind = ? ORDER BY occurred_on, id`,
		string(id), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	defer rows.Close()

	var entries []ledger.TimeEntry
	for rows.Next() {
		var e ledger.TimeEntry
		var occurredOn string
		if err := rows.Scan(&e.ID, &e.Owner, &e.OwnerName, &e.Minutes, &e.Note, &occurredOn); err != nil {
			return nil, err
		}
		e.OccurredOn, err = ledger.ParseDate(occurredOn)
		if err != nil {
			return nil, fmt.Errorf("corrupt occurred_on for entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplaceLedger swaps the whole ledger of one kind inside one database
// transaction, guarded by the container version stamp.
func (s *Store) ReplaceLedger(ctx context.Context, id hierarchy.ContainerID, kind ledger.Kind, entries []ledger.TimeEntry, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := bumpVersion(ctx, tx, id, expectedVersion); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE container_id = ? AND kind = ?`, string(id), string(kind)); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries (id, container_id, kind, owner, owner_name, minutes, note, occurred_on, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(e.ID), string(id), string(kind), e.Owner, e.OwnerName, e.Minutes, e.Note, e.OccurredOn.String(), now); err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// STATUS AND SNAPSHOTS
// =============================================================================

// UpdateStatus sets the container status under the version discipline.
func (s *Store) UpdateStatus(ctx context.Context, id hierarchy.ContainerID, status hierarchy.Status, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := bumpVersion(ctx, tx, id, expectedVersion); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE containers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), string(id)); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return tx.Commit()
}

// UpdateSnapshot writes all four rollup counters in one statement.
// Snapshot writes carry no version check: a full recompute is correct no
// matter who raced it.
func (s *Store) UpdateSnapshot(ctx context.Context, id hierarchy.ContainerID, snap hierarchy.StatsSnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE containers
		SET child_total = ?, child_completed = ?, grandchild_total = ?, grandchild_completed = ?, updated_at = ?
		WHERE id = ?`,
		snap.ChildTotal, snap.ChildCompleted, snap.GrandchildTotal, snap.GrandchildCompleted,
		time.Now().UTC().Format(time.RFC3339), string(id))
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrContainerNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// bumpVersion is the optimistic-concurrency gate shared by every write
// that must not interleave with another.
func bumpVersion(ctx context.Context, tx *sql.Tx, id hierarchy.ContainerID, expected int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE containers SET version = version + 1 WHERE id = ? AND version = ?`,
		string(id), expected)
	if err != nil {
		return fmt.Errorf("failed to bump version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish "gone" from "someone got there first".
	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM containers WHERE id = ?`, string(id)).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return engine.ErrContainerNotFound
	}
	return engine.ErrConcurrentModification
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(row rowScanner) (*hierarchy.Container, error) {
	var c hierarchy.Container
	var parent sql.NullString
	err := row.Scan(&c.ID, &c.Level, &parent, &c.BoardID, &c.ListID, &c.Title, &c.Status, &c.Version,
		&c.Stats.ChildTotal, &c.Stats.ChildCompleted, &c.Stats.GrandchildTotal, &c.Stats.GrandchildCompleted)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = hierarchy.ContainerID(parent.String)
	}
	return &c, nil
}

func collectContainers(rows *sql.Rows) ([]hierarchy.Container, error) {
	var result []hierarchy.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Handle is one live connection to the store file. Exactly one Handle is
// current at any time; it is owned by the Manager, which may destroy and
// replace it. Callers must re-fetch the current handle on every use and
// never hold one across long operations.
type Handle struct {
	DB *sql.DB

	path     string
	openedAt time.Time
	closed   bool
}

// openHandle opens (and creates if needed) the store at path and applies
// the durability and performance pragmas.
func openHandle(path string) (*Handle, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite prefers single writer.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Handle{DB: sqlDB, path: path, openedAt: time.Now()}, nil
}

// applyPragmas configures journaling and cache behavior:
//   - WAL mode so reads do not block the writer
//   - NORMAL synchronous (deferred flush, balance durability/performance)
//   - 5-second busy timeout for external lock contention (antivirus scans)
//   - 64 MB page cache
//   - foreign key enforcement
func applyPragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the store file path the handle is bound to.
func (h *Handle) Path() string {
	return h.path
}

// OpenedAt returns when the handle was created.
func (h *Handle) OpenedAt() time.Time {
	return h.openedAt
}

// Closed reports whether the handle has been shut down.
func (h *Handle) Closed() bool {
	return h == nil || h.closed
}

// Close releases the underlying connection. Safe to call twice.
func (h *Handle) Close() error {
	if h == nil || h.DB == nil || h.closed {
		return nil
	}
	h.closed = true
	return h.DB.Close()
}

// Checkpoint forces a WAL checkpoint so the main db file contains all
// committed data. Called before the file is copied for a backup.
func (h *Handle) Checkpoint() error {
	if h.Closed() {
		return errors.New("handle is closed")
	}
	if _, err := h.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// removeSidecars deletes stale -wal/-shm companions next to a store file.
// Required before a foreign file is copied over the live path, otherwise
// SQLite would replay the old WAL into the new file.
func removeSidecars(path string) {
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
}

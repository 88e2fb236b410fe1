package db

import (
	"database/sql"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    client TEXT,
    address TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    budget REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS employees (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT,
    hourly_rate REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS materials (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    quantity REAL DEFAULT 0,
    unit TEXT,
    unit_price REAL DEFAULT 0,
    purchased_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS work_logs (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    employee_id TEXT NOT NULL,
    work_date TEXT NOT NULL,
    hours REAL NOT NULL DEFAULT 0,
    note TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(employee_id) REFERENCES employees(id)
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    amount REAL NOT NULL,
    direction TEXT NOT NULL DEFAULT 'in',
    method TEXT,
    paid_at TEXT,
    note TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_materials_project ON materials(project_id);
CREATE INDEX IF NOT EXISTS idx_work_logs_project ON work_logs(project_id);
CREATE INDEX IF NOT EXISTS idx_work_logs_employee ON work_logs(employee_id);
CREATE INDEX IF NOT EXISTS idx_payments_project ON payments(project_id);
`

// columnSpec describes one required column for additive repair of store
// files created by older releases.
type columnSpec struct {
	table      string
	column     string
	definition string
}

// requiredColumns lists columns added after the initial release. New
// stores get them from the base schema; old files get ALTER TABLE.
var requiredColumns = []columnSpec{
	{"projects", "status", "TEXT NOT NULL DEFAULT 'active'"},
	{"projects", "budget", "REAL DEFAULT 0"},
	{"projects", "archived", "INTEGER DEFAULT 0"},
	{"employees", "hourly_rate", "REAL DEFAULT 0"},
	{"employees", "phone", "TEXT"},
	{"materials", "unit_price", "REAL DEFAULT 0"},
	{"materials", "supplier", "TEXT"},
	{"work_logs", "hours", "REAL NOT NULL DEFAULT 0"},
	{"payments", "method", "TEXT"},
	{"payments", "direction", "TEXT NOT NULL DEFAULT 'in'"},
}

// Reconcile brings the store schema up to date: creates missing tables and
// indexes, then adds any missing required columns. The whole pass runs in
// one transaction so a mid-pass failure leaves the schema unchanged.
// Idempotent: a second run applies zero changes. Returns the number of
// columns actually added.
func Reconcile(h *Handle) (int, error) {
	if h == nil || h.DB == nil {
		return 0, fmt.Errorf("reconcile schema: %w", ErrHandleUnavailable)
	}

	tx, err := h.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("reconcile schema: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return 0, fmt.Errorf("reconcile schema: apply base schema: %w", err)
	}

	applied := 0
	for _, spec := range requiredColumns {
		exists, err := columnExists(tx, spec.table, spec.column)
		if err != nil {
			return 0, fmt.Errorf("reconcile schema: %w", err)
		}
		if exists {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", spec.table, spec.column, spec.definition)
		if _, err := tx.Exec(alter); err != nil {
			return 0, fmt.Errorf("reconcile schema: add column %s.%s: %w", spec.table, spec.column, err)
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("reconcile schema: commit: %w", err)
	}
	return applied, nil
}

// columnExists inspects live column metadata. Names compare
// case-insensitively, matching SQLite's own identifier rules.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

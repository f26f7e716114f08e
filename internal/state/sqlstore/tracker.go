// Package sqlstore implements the execution registry on database/sql for
// SQLite and MySQL targets.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toolsascode/schemaflow/internal/state"
)

// Dialect holds the per-database DDL and identifier quoting
type Dialect struct {
	Name        string
	CreateTable string // format string taking the quoted table name
	Quote       func(string) string
}

// SQLite is the dialect for modernc.org/sqlite databases
var SQLite = Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS %s (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL,
		name        TEXT NOT NULL,
		module      TEXT NOT NULL,
		path        TEXT NOT NULL,
		applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		checksum    TEXT NOT NULL DEFAULT '',
		log         TEXT NOT NULL DEFAULT '',
		run_id      TEXT NOT NULL DEFAULT '',
		executed_by TEXT NOT NULL DEFAULT ''
	)`,
	Quote: func(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` },
}

// MySQL is the dialect for go-sql-driver/mysql connections opened with parseTime=true
var MySQL = Dialect{
	Name: "mysql",
	CreateTable: `CREATE TABLE IF NOT EXISTS %s (
		seq         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id          VARCHAR(64) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		module      VARCHAR(255) NOT NULL,
		path        VARCHAR(1024) NOT NULL,
		applied_at  DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		duration_ms BIGINT NOT NULL DEFAULT 0,
		status      VARCHAR(20) NOT NULL,
		checksum    VARCHAR(64) NOT NULL DEFAULT '',
		log         MEDIUMTEXT NOT NULL,
		run_id      VARCHAR(64) NOT NULL DEFAULT '',
		executed_by VARCHAR(255) NOT NULL DEFAULT '',
		INDEX idx_registry_id (id, seq),
		INDEX idx_registry_run_id (run_id)
	)`,
	Quote: func(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" },
}

// DialectFor returns the dialect for a normalized backend name
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case "sqlite":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("no registry dialect for backend %q", backend)
}

// Tracker implements state.Tracker on a *sql.DB
type Tracker struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewTracker creates a tracker on db. The connection is owned by the caller.
func NewTracker(db *sql.DB, dialect Dialect, table string) *Tracker {
	if table == "" {
		table = state.DefaultTable
	}
	return &Tracker{db: db, dialect: dialect, table: table}
}

func (t *Tracker) tableName() string {
	return t.dialect.Quote(t.table)
}

// Initialize creates the registry table
func (t *Tracker) Initialize(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, fmt.Sprintf(t.dialect.CreateTable, t.tableName())); err != nil {
		return fmt.Errorf("failed to create %s table: %w", t.table, err)
	}

	if t.dialect.Name == SQLite.Name {
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (id, seq)",
			t.dialect.Quote("idx_"+t.table+"_id"), t.tableName())
		if _, err := t.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create %s index: %w", t.table, err)
		}
	}

	return nil
}

// Record appends a registry row
func (t *Tracker) Record(ctx context.Context, record *state.Record) error {
	appliedAt := record.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(id, name, module, path, applied_at, duration_ms, status, checksum, log, run_id, executed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, t.tableName())

	_, err := t.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.Module,
		record.Path,
		appliedAt.UTC(),
		record.DurationMs,
		string(record.Status),
		record.Checksum,
		record.Log,
		record.RunID,
		record.ExecutedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", record.Path, err)
	}
	return nil
}

// LastStatus returns the status of the newest row for id
func (t *Tracker) LastStatus(ctx context.Context, id string) (state.Status, error) {
	query := fmt.Sprintf("SELECT status FROM %s WHERE id = ? ORDER BY seq DESC LIMIT 1", t.tableName())

	var status string
	err := t.db.QueryRowContext(ctx, query, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return state.StatusNA, nil
	}
	if err != nil {
		return state.StatusNA, fmt.Errorf("failed to read status of %s: %w", id, err)
	}
	return state.Status(status), nil
}

// History returns matching rows, newest first
func (t *Tracker) History(ctx context.Context, filters *state.Filters) ([]*state.Record, error) {
	where, args := filters.Where(func(int) string { return "?" })
	query := fmt.Sprintf(`SELECT id, name, module, path, applied_at, duration_ms, status, checksum, log, run_id, executed_by
		FROM %s`, t.tableName()) + where + " ORDER BY seq DESC" + filters.LimitClause()

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*state.Record
	for rows.Next() {
		var record state.Record
		var status string
		err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.Module,
			&record.Path,
			&record.AppliedAt,
			&record.DurationMs,
			&status,
			&record.Checksum,
			&record.Log,
			&record.RunID,
			&record.ExecutedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}
		record.Status = state.Status(status)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Close is a no-op; the connection belongs to the backend
func (t *Tracker) Close() error {
	return nil
}

package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/state"
)

// Tracker implements state.Tracker for PostgreSQL
type Tracker struct {
	pool   *pgxpool.Pool
	schema string
	table  string
	owned  bool
}

// NewTracker creates a tracker with its own pool
func NewTracker(ctx context.Context, connStr, schema, table string) (*Tracker, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tracker := NewTrackerWithPool(pool, schema, table)
	tracker.owned = true
	return tracker, nil
}

// NewTrackerWithPool creates a tracker on a pool shared with the backend
func NewTrackerWithPool(pool *pgxpool.Pool, schema, table string) *Tracker {
	if table == "" {
		table = state.DefaultTable
	}
	return &Tracker{
		pool:   pool,
		schema: schema,
		table:  table,
	}
}

// tableName returns the qualified registry table name
func (t *Tracker) tableName() string {
	if t.schema != "" && t.schema != "public" {
		return fmt.Sprintf("%s.%s", quoteIdentifier(t.schema), quoteIdentifier(t.table))
	}
	return quoteIdentifier(t.table)
}

// Initialize creates the registry table
func (t *Tracker) Initialize(ctx context.Context) error {
	if t.schema != "" && t.schema != "public" {
		schemaQuery := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(t.schema))
		if _, err := t.pool.Exec(ctx, schemaQuery); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	tableName := t.tableName()
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			module VARCHAR(255) NOT NULL,
			path VARCHAR(1024) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			checksum VARCHAR(64) NOT NULL DEFAULT '',
			log TEXT NOT NULL DEFAULT '',
			run_id VARCHAR(64) NOT NULL DEFAULT '',
			executed_by VARCHAR(255) NOT NULL DEFAULT ''
		)
	`, tableName)

	if _, err := t.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", t.table, err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (id, seq DESC)", quoteIdentifier("idx_"+t.table+"_id"), tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (run_id)", quoteIdentifier("idx_"+t.table+"_run_id"), tableName),
	}
	for _, index := range indexes {
		if _, err := t.pool.Exec(ctx, index); err != nil {
			logger.Warnf("Failed to create registry index: %v", err)
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

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, module, path, applied_at, duration_ms, status, checksum, log, run_id, executed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.tableName())

	_, err := t.pool.Exec(ctx, query,
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
	query := fmt.Sprintf("SELECT status FROM %s WHERE id = $1 ORDER BY seq DESC LIMIT 1", t.tableName())

	var status string
	err := t.pool.QueryRow(ctx, query, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return state.StatusNA, nil
	}
	if err != nil {
		return state.StatusNA, fmt.Errorf("failed to read status of %s: %w", id, err)
	}
	return state.Status(status), nil
}

// History returns matching rows, newest first
func (t *Tracker) History(ctx context.Context, filters *state.Filters) ([]*state.Record, error) {
	where, args := filters.Where(func(n int) string { return fmt.Sprintf("$%d", n) })
	query := fmt.Sprintf(`
		SELECT id, name, module, path, applied_at, duration_ms, status, checksum, log, run_id, executed_by
		FROM %s`, t.tableName()) + where + " ORDER BY seq DESC" + filters.LimitClause()

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer rows.Close()

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

// Close closes the pool when the tracker owns it
func (t *Tracker) Close() error {
	if t.owned && t.pool != nil {
		t.pool.Close()
	}
	return nil
}

// quoteIdentifier quotes a PostgreSQL identifier
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/toolsascode/schemaflow/internal/backends"

	_ "modernc.org/sqlite"
)

// Backend implements the Backend interface for SQLite through the pure Go
// modernc driver. The database name is a file path or ":memory:".
type Backend struct {
	db     *sql.DB
	config *backends.ConnectionConfig
}

// NewBackend creates a new SQLite backend
func NewBackend() *Backend {
	return &Backend{}
}

// NewBackendWithDB wraps an already opened database
func NewBackendWithDB(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "sqlite"
}

// Connect opens the database file
func (b *Backend) Connect(config *backends.ConnectionConfig) error {
	b.config = config

	path := config.Database
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite is single-writer and every :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}

	b.db = db
	return nil
}

// DB exposes the database for the registry tracker
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Close closes the database
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Exec executes a single statement
func (b *Backend) Exec(ctx context.Context, statement string) error {
	if b.db == nil {
		return fmt.Errorf("database connection not initialized")
	}
	_, err := b.db.ExecContext(ctx, statement)
	return err
}

// TableExists checks if a table exists
func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	return b.masterEntryExists(ctx, "table", table)
}

// ViewExists checks if a view exists
func (b *Backend) ViewExists(ctx context.Context, view string) (bool, error) {
	return b.masterEntryExists(ctx, "view", view)
}

// IndexExists checks if an index exists
func (b *Backend) IndexExists(ctx context.Context, index string) (bool, error) {
	return b.masterEntryExists(ctx, "index", index)
}

// ColumnExists checks if a column exists on a table or view
func (b *Backend) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	if b.db == nil {
		return false, fmt.Errorf("database connection not initialized")
	}
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ? COLLATE NOCASE`,
		table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check column existence: %w", err)
	}
	return count > 0, nil
}

func (b *Backend) masterEntryExists(ctx context.Context, kind, name string) (bool, error) {
	if b.db == nil {
		return false, fmt.Errorf("database connection not initialized")
	}
	var count int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ? COLLATE NOCASE`,
		kind, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", kind, err)
	}
	return count > 0, nil
}

// HealthCheck verifies the database is accessible
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.db == nil {
		return fmt.Errorf("database connection not initialized")
	}
	return b.db.PingContext(ctx)
}

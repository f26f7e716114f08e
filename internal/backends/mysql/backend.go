package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/toolsascode/schemaflow/internal/backends"
)

// Backend implements the Backend interface for MySQL and MariaDB. Object
// lookups are scoped to the connection's current database.
type Backend struct {
	db     *sql.DB
	config *backends.ConnectionConfig
}

// NewBackend creates a new MySQL backend
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "mysql"
}

// Connect opens the connection pool and pings the server
func (b *Backend) Connect(config *backends.ConnectionConfig) error {
	b.config = config

	db, err := sql.Open("mysql", DSN(config))
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}

	b.db = db
	return nil
}

// DB exposes the connection pool for the registry tracker
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Close closes the MySQL connection
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

// TableExists checks if a base table exists
func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	return b.exists(ctx, "table", `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND LOWER(table_name) = LOWER(?) AND table_type = 'BASE TABLE'
	`, table)
}

// ViewExists checks if a view exists
func (b *Backend) ViewExists(ctx context.Context, view string) (bool, error) {
	return b.exists(ctx, "view", `
		SELECT COUNT(*)
		FROM information_schema.views
		WHERE table_schema = DATABASE() AND LOWER(table_name) = LOWER(?)
	`, view)
}

// IndexExists checks if an index exists on any table
func (b *Backend) IndexExists(ctx context.Context, index string) (bool, error) {
	return b.exists(ctx, "index", `
		SELECT COUNT(*)
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND LOWER(index_name) = LOWER(?)
	`, index)
}

// ColumnExists checks if a column exists on a table or view
func (b *Backend) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return b.exists(ctx, "column", `
		SELECT COUNT(*)
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND LOWER(table_name) = LOWER(?) AND LOWER(column_name) = LOWER(?)
	`, table, column)
}

func (b *Backend) exists(ctx context.Context, kind, query string, args ...any) (bool, error) {
	if b.db == nil {
		return false, fmt.Errorf("database connection not initialized")
	}
	var count int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", kind, err)
	}
	return count > 0, nil
}

// HealthCheck verifies the backend is accessible
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.db == nil {
		return fmt.Errorf("database connection not initialized")
	}
	return b.db.PingContext(ctx)
}

// DSN builds a go-sql-driver DSN. Times are parsed into time.Time so the
// registry can scan applied_at.
func DSN(config *backends.ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.DBName = config.Database
	cfg.ParseTime = true

	port := config.Port
	if port == "" {
		port = "3306"
	}
	if strings.HasPrefix(config.Host, "/") {
		cfg.Net = "unix"
		cfg.Addr = config.Host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(config.Host, port)
	}

	if tz := config.ExtraOrDefault("loc", ""); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Loc = loc
		}
	}

	return cfg.FormatDSN()
}

// QuoteIdentifier quotes a MySQL identifier
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

package postgresql

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/schemaflow/internal/backends"
)

// Backend implements the Backend interface for PostgreSQL
type Backend struct {
	pool   *pgxpool.Pool
	config *backends.ConnectionConfig
	schema string
}

// NewBackend creates a new PostgreSQL backend
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend name
func (b *Backend) Name() string {
	return "postgresql"
}

// Connect establishes a connection pool to PostgreSQL. Every pooled
// connection has its search_path set to the configured schema.
func (b *Backend) Connect(config *backends.ConnectionConfig) error {
	b.config = config
	b.schema = config.Schema
	if b.schema == "" {
		b.schema = "public"
	}

	poolConfig, err := pgxpool.ParseConfig(DSN(config))
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}
	configurePool(poolConfig)
	poolConfig.ConnConfig.RuntimeParams["search_path"] = b.schema

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	b.pool = pool
	return nil
}

// Pool exposes the underlying pool so the registry tracker and the advisory
// lock can share it.
func (b *Backend) Pool() *pgxpool.Pool {
	return b.pool
}

// Close closes the PostgreSQL pool
func (b *Backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

// Exec executes a single statement
func (b *Backend) Exec(ctx context.Context, statement string) error {
	if b.pool == nil {
		return fmt.Errorf("database connection not initialized")
	}
	if _, err := b.pool.Exec(ctx, statement); err != nil {
		return err
	}
	return nil
}

// TableExists checks if a base table exists in the configured schema
func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	return b.exists(ctx, "table", `
		SELECT EXISTS(
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = $1 AND lower(table_name) = lower($2) AND table_type = 'BASE TABLE'
		)
	`, b.schema, table)
}

// ViewExists checks if a view exists in the configured schema
func (b *Backend) ViewExists(ctx context.Context, view string) (bool, error) {
	return b.exists(ctx, "view", `
		SELECT EXISTS(
			SELECT 1
			FROM information_schema.views
			WHERE table_schema = $1 AND lower(table_name) = lower($2)
		)
	`, b.schema, view)
}

// IndexExists checks if an index exists in the configured schema
func (b *Backend) IndexExists(ctx context.Context, index string) (bool, error) {
	return b.exists(ctx, "index", `
		SELECT EXISTS(
			SELECT 1
			FROM pg_indexes
			WHERE schemaname = $1 AND lower(indexname) = lower($2)
		)
	`, b.schema, index)
}

// ColumnExists checks if a column exists on a table or view
func (b *Backend) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	return b.exists(ctx, "column", `
		SELECT EXISTS(
			SELECT 1
			FROM information_schema.columns
			WHERE table_schema = $1 AND lower(table_name) = lower($2) AND lower(column_name) = lower($3)
		)
	`, b.schema, table, column)
}

func (b *Backend) exists(ctx context.Context, kind, query string, args ...any) (bool, error) {
	if b.pool == nil {
		return false, fmt.Errorf("database connection not initialized")
	}
	var exists bool
	if err := b.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", kind, err)
	}
	return exists, nil
}

// HealthCheck verifies the backend is accessible
func (b *Backend) HealthCheck(ctx context.Context) error {
	if b.pool == nil {
		return fmt.Errorf("database connection not initialized")
	}
	return b.pool.Ping(ctx)
}

// DSN builds a postgres:// connection URL. sslmode comes from Extra and
// defaults to disable.
func DSN(config *backends.ConnectionConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   config.Host,
		Path:   "/" + config.Database,
	}
	if config.Port != "" {
		u.Host = config.Host + ":" + config.Port
	}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
	}

	q := url.Values{}
	q.Set("sslmode", config.ExtraOrDefault("sslmode", "disable"))
	if app := config.ExtraOrDefault("application_name", ""); app != "" {
		q.Set("application_name", app)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// QuoteIdentifier quotes a PostgreSQL identifier
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// configurePool applies pool limits that can be overridden via environment variables
func configurePool(config *pgxpool.Config) {
	config.MaxConns = int32(getEnvInt("SCHEMAFLOW_DB_MAX_OPEN_CONNS", 5))
	config.MinConns = int32(getEnvInt("SCHEMAFLOW_DB_MIN_CONNS", 0))
	config.MaxConnLifetime = time.Duration(getEnvInt("SCHEMAFLOW_DB_CONN_MAX_LIFETIME_MINUTES", 5)) * time.Minute
	config.MaxConnIdleTime = time.Duration(getEnvInt("SCHEMAFLOW_DB_CONN_MAX_IDLE_TIME_MINUTES", 1)) * time.Minute
}

// getEnvInt gets an integer environment variable or returns the default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

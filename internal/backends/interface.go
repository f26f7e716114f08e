package backends

import (
	"context"
	"fmt"
	"strings"
)

// Inspector answers existence questions about objects in the target schema
type Inspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ViewExists(ctx context.Context, view string) (bool, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// Executor runs a single SQL statement and fails if the database rejects it
type Executor interface {
	Exec(ctx context.Context, statement string) error
}

// Backend represents a target database that migrations are applied to
type Backend interface {
	Inspector
	Executor

	// Name returns the name of the backend (e.g., "postgresql", "mysql", "sqlite")
	Name() string

	// Connect establishes a connection to the backend
	Connect(config *ConnectionConfig) error

	// Close closes the connection to the backend
	Close() error

	// HealthCheck verifies the backend is accessible
	HealthCheck(ctx context.Context) error
}

// ConnectionConfig holds configuration for a backend connection
type ConnectionConfig struct {
	Backend  string // "postgresql", "mysql", "sqlite"
	Host     string
	Port     string
	Username string
	Password string
	Database string            // Database name, or file path for sqlite
	Schema   string            // PostgreSQL schema; defaults to public
	Extra    map[string]string // Additional backend-specific config
}

// ExtraOrDefault returns an Extra value or def when it is unset
func (c *ConnectionConfig) ExtraOrDefault(key, def string) string {
	if c == nil || c.Extra == nil {
		return def
	}
	if v, ok := c.Extra[key]; ok && v != "" {
		return v
	}
	return def
}

// Normalize maps backend aliases onto their canonical names
func Normalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgresql", "postgres", "pg":
		return "postgresql", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported backend: %q", name)
}

package lockfactory

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/schemaflow/internal/lock"
	"github.com/toolsascode/schemaflow/internal/lock/etcd"
	"github.com/toolsascode/schemaflow/internal/lock/postgresql"
)

// LockConfig holds configuration for creating a run lock
type LockConfig struct {
	Type          string // "none", "local", "postgresql" or "etcd"
	EtcdEndpoints []string
	EtcdPrefix    string
	EtcdUsername  string
	EtcdPassword  string
	TTL           time.Duration
	Pool          *pgxpool.Pool // target pool, required for "postgresql"
}

// NewLocker creates a locker based on the configuration. Lockers holding
// connections of their own also implement io.Closer.
func NewLocker(config *LockConfig) (lock.Locker, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return lock.NewLocal(), nil

	case "none":
		return lock.Noop{}, nil

	case "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("postgresql lock requires a postgresql target connection")
		}
		return postgresql.NewLocker(config.Pool), nil

	case "etcd":
		return etcd.NewLocker(etcd.Config{
			Endpoints: config.EtcdEndpoints,
			Username:  config.EtcdUsername,
			Password:  config.EtcdPassword,
			Prefix:    config.EtcdPrefix,
			TTL:       config.TTL,
		})

	default:
		return nil, fmt.Errorf("unsupported lock type: %s (supported: none, local, postgresql, etcd)", config.Type)
	}
}

// Package dbfactory opens the target database and the components that live
// on its connection: the execution registry and the run lock.
package dbfactory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/backends/mysql"
	"github.com/toolsascode/schemaflow/internal/backends/postgresql"
	"github.com/toolsascode/schemaflow/internal/backends/sqlite"
	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/executor"
	"github.com/toolsascode/schemaflow/internal/lock"
	"github.com/toolsascode/schemaflow/internal/lockfactory"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/registry"
	"github.com/toolsascode/schemaflow/internal/script"
	"github.com/toolsascode/schemaflow/internal/state"
	statepg "github.com/toolsascode/schemaflow/internal/state/postgresql"
	"github.com/toolsascode/schemaflow/internal/state/sqlstore"
)

// Resources are the connected target, registry and lock
type Resources struct {
	Backend backends.Backend
	Tracker state.Tracker
	Locker  lock.Locker
}

// NewBackend returns an unconnected backend by name
func NewBackend(name string) (backends.Backend, error) {
	normalized, err := backends.Normalize(name)
	if err != nil {
		return nil, err
	}
	switch normalized {
	case "postgresql":
		return postgresql.NewBackend(), nil
	case "mysql":
		return mysql.NewBackend(), nil
	default:
		return sqlite.NewBackend(), nil
	}
}

// NewTracker creates the registry tracker on a connected backend
func NewTracker(backend backends.Backend, registry config.RegistryConfig, schema string) (state.Tracker, error) {
	switch b := backend.(type) {
	case *postgresql.Backend:
		if registry.Schema != "" {
			schema = registry.Schema
		}
		return statepg.NewTrackerWithPool(b.Pool(), schema, registry.Table), nil
	case *mysql.Backend:
		return sqlstore.NewTracker(b.DB(), sqlstore.MySQL, registry.Table), nil
	case *sqlite.Backend:
		return sqlstore.NewTracker(b.DB(), sqlstore.SQLite, registry.Table), nil
	}
	return nil, fmt.Errorf("no registry store for backend %s", backend.Name())
}

// Open connects the target database from cfg and builds the registry
// tracker and run lock on it
func Open(cfg *config.Config) (*Resources, error) {
	backend, err := NewBackend(cfg.Database.Backend)
	if err != nil {
		return nil, err
	}
	if err := backend.Connect(cfg.Connection()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", backend.Name(), err)
	}

	tracker, err := NewTracker(backend, cfg.Registry, cfg.Database.Schema)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	var pool *pgxpool.Pool
	if pg, ok := backend.(*postgresql.Backend); ok {
		pool = pg.Pool()
	}
	locker, err := lockfactory.NewLocker(&lockfactory.LockConfig{
		Type:          cfg.Lock.Type,
		EtcdEndpoints: cfg.Lock.EtcdEndpoints,
		EtcdPrefix:    cfg.Lock.EtcdPrefix,
		EtcdUsername:  cfg.Lock.EtcdUsername,
		EtcdPassword:  cfg.Lock.EtcdPassword,
		TTL:           time.Duration(cfg.Lock.TTLSeconds) * time.Second,
		Pool:          pool,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	logger.Infof("Connected to %s target %s (registry table %s, %s lock)",
		backend.Name(), cfg.Database.Database, cfg.Registry.Table, lockName(cfg.Lock.Type))

	return &Resources{Backend: backend, Tracker: tracker, Locker: locker}, nil
}

// NewExecutor builds an executor over the opened resources, reading
// descriptors and scripts from the configured directories
func NewExecutor(cfg *config.Config, res *Resources) *executor.Executor {
	exec := executor.NewExecutor(
		res.Backend,
		res.Tracker,
		script.NewSource(os.DirFS(cfg.Paths.Scripts)).WithDialect(script.DialectFor(res.Backend.Name())),
		registry.NewDirDiscoverer(os.DirFS(cfg.Paths.Descriptors), "."),
		executor.Options{
			FailOnError:   cfg.Session.FailOnError,
			AppliedPolicy: cfg.Session.AppliedPolicy,
			DatabaseType:  cfg.DatabaseType(),
			LockKey:       cfg.Lock.Key,
		},
	)
	exec.SetLocker(res.Locker)
	return exec
}

// Close releases the lock client, the registry and the target connection
func (r *Resources) Close() error {
	var errs []error
	if c, ok := r.Locker.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if r.Tracker != nil {
		errs = append(errs, r.Tracker.Close())
	}
	if r.Backend != nil {
		errs = append(errs, r.Backend.Close())
	}
	return errors.Join(errs...)
}

func lockName(t string) string {
	if t == "" {
		return "local"
	}
	return t
}

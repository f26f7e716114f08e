package postgresql

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/toolsascode/schemaflow/internal/logger"
)

// Locker uses PostgreSQL session advisory locks. Each held lock pins one
// pooled connection until released.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates an advisory locker on pool
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// Acquire blocks in pg_advisory_lock until the lock is granted or ctx is done
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	lockID := Key(key)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection for %s: %w", key, err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}
	logger.Debugf("Acquired advisory lock %s (%d)", key, lockID)

	var once sync.Once
	release := func() {
		once.Do(func() {
			// ctx may already be cancelled
			if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
				logger.Warnf("Failed to release advisory lock %s: %v", key, err)
			}
			conn.Release()
		})
	}
	return release, nil
}

// Key hashes a lock name to a non-negative advisory lock id (FNV-1a)
func Key(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

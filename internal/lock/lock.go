// Package lock serializes migration runs that share a target database.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// DefaultKey is the lock key used for a migration run
const DefaultKey = "schemaflow:migrate"

// Locker provides mutual exclusion across processes or nodes. The release
// function returned by Acquire must be called exactly once; extra calls are
// no-ops.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is a process-local Locker keyed by name
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates a process-local locker
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

// Acquire blocks until key is free or ctx is done
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Noop never blocks
type Noop struct{}

// Acquire returns immediately unless ctx is already done
func (Noop) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}

package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/toolsascode/schemaflow/internal/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Config holds etcd lock settings
type Config struct {
	Endpoints   []string
	Username    string
	Password    string
	Prefix      string
	DialTimeout time.Duration
	TTL         time.Duration // session lease; a crashed holder loses the lock after TTL
}

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = 60 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "/schemaflow/locks/"
	}
	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
}

// ParseEndpoints splits a comma separated endpoint list
func ParseEndpoints(s string) []string {
	var endpoints []string
	for _, ep := range strings.Split(s, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// Locker implements lock.Locker with etcd leases and concurrency.Mutex
type Locker struct {
	client *clientv3.Client
	config Config
}

// NewLocker connects to etcd
func NewLocker(config Config) (*Locker, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd lock requires at least one endpoint")
	}
	config.setDefaults()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		Username:    config.Username,
		Password:    config.Password,
		DialTimeout: config.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &Locker{client: client, config: config}, nil
}

// Acquire opens a lease-backed session and locks key under the prefix
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	session, err := concurrency.NewSession(l.client,
		concurrency.WithTTL(int(l.config.TTL.Seconds())),
		concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	name := l.lockKey(key)
	mutex := concurrency.NewMutex(session, name)
	if err := mutex.Lock(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	logger.Debugf("Acquired etcd lock %s", name)

	var once sync.Once
	release := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), l.config.DialTimeout)
			defer cancel()
			if err := mutex.Unlock(unlockCtx); err != nil {
				logger.Warnf("Failed to release etcd lock %s: %v", name, err)
			}
			_ = session.Close()
		})
	}
	return release, nil
}

// Close closes the etcd client
func (l *Locker) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

func (l *Locker) lockKey(key string) string {
	return l.config.Prefix + strings.TrimPrefix(key, "/")
}

package descriptor

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// identityNamespace seeds every name-based identifier so that ids are stable
// across processes and releases.
var identityNamespace = uuid.MustParse("6f1c3a52-9d0e-5b7a-8c41-2e6d9f0b7a13")

// DefaultIdentityCacheSize bounds the process-wide identity cache.
const DefaultIdentityCacheSize = 4096

// IdentityCache memoizes name-based identifiers. It is safe for concurrent
// use; when it reaches its cap it is cleared rather than evicting entries.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[string]string
	max     int
}

// NewIdentityCache creates a cache holding at most max entries.
func NewIdentityCache(max int) *IdentityCache {
	if max <= 0 {
		max = DefaultIdentityCacheSize
	}
	return &IdentityCache{
		entries: make(map[string]string),
		max:     max,
	}
}

// Get returns the identifier for the given parts, computing it on a miss.
func (c *IdentityCache) Get(parts ...string) string {
	key := strings.Join(parts, "\x00")

	c.mu.RLock()
	id, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return id
	}

	id = uuid.NewSHA1(identityNamespace, []byte(key)).String()

	c.mu.Lock()
	if len(c.entries) >= c.max {
		c.entries = make(map[string]string)
	}
	c.entries[key] = id
	c.mu.Unlock()

	return id
}

// Len reports the number of cached identifiers.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var identities = NewIdentityCache(DefaultIdentityCacheSize)

// DefinitionID derives a definition id from its module, path and database type.
func DefinitionID(moduleID, path, databaseType string) string {
	return identities.Get("definition", moduleID, path, databaseType)
}

// MigrationID derives a migration id from its definition id and its own path.
func MigrationID(definitionID, migrationPath string) string {
	return identities.Get("migration", definitionID, migrationPath)
}

package odoo

import (
	"sort"
	"sync"
)

// Scope selects one of the per-database caches.
type Scope int

const (
	ScopeModels Scope = iota // known model names
	ScopeFields              // field metadata, keyed by model name
	ScopeAuth                // credentials, keyed by login and "#<uid>"
	ScopeEnvs                // derived environments, keyed by (uid, context)
)

func (s Scope) String() string {
	switch s {
	case ScopeModels:
		return "models"
	case ScopeFields:
		return "fields"
	case ScopeAuth:
		return "auth"
	case ScopeEnvs:
		return "envs"
	}
	return "unknown"
}

// CacheKey identifies one cache partition.
type CacheKey struct {
	Scope    Scope
	Database string
	Server   string
}

// Cache holds the schema and credential caches shared by every Env of a
// (server, database) pair. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]map[string]any
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]map[string]any)}
}

// Get returns the entry stored under name.
func (c *Cache) Get(key CacheKey, name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key][name]
	return v, ok
}

// Set stores value under name.
func (c *Cache) Set(key CacheKey, name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, name, value)
}

func (c *Cache) setLocked(key CacheKey, name string, value any) {
	part := c.entries[key]
	if part == nil {
		part = make(map[string]any)
		c.entries[key] = part
	}
	part[name] = value
}

// LoadOrStore returns the existing entry for name if present. Otherwise it
// stores and returns value. The boolean is true if the value was loaded.
func (c *Cache) LoadOrStore(key CacheKey, name string, value any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key][name]; ok {
		return v, true
	}
	c.setLocked(key, name, value)
	return value, false
}

// Delete removes the entry stored under name.
func (c *Cache) Delete(key CacheKey, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[key], name)
}

// Names returns the sorted entry names of a partition.
func (c *Cache) Names(key CacheKey) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries[key]))
	for name := range c.entries[key] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearDatabase drops every partition of (server, database) except the
// scopes listed in keep.
func (c *Cache) ClearDatabase(server, database string, keep ...Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.Server != server || key.Database != database {
			continue
		}
		kept := false
		for _, s := range keep {
			if key.Scope == s {
				kept = true
			}
		}
		if !kept {
			delete(c.entries, key)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]map[string]any)
}

type credential struct {
	uid      int
	password string
}

package smbpoll

import (
	"strings"
	"sync"
	"time"
)

// DirCacheConfig configures the cache of directories known to exist, which
// lets repeated uploads into the same directory skip building it again.
type DirCacheConfig struct {
	// Disabled turns the cache off.
	Disabled bool

	// TTL is how long a directory is trusted to still exist.
	// Default: 30 seconds.
	TTL time.Duration

	// MaxEntries is the maximum number of remembered directories.
	// When exceeded, the least recently used are evicted. Default: 1000.
	MaxEntries int
}

// DefaultDirCacheConfig returns a cache configuration with reasonable defaults.
func DefaultDirCacheConfig() DirCacheConfig {
	return DirCacheConfig{
		TTL:        30 * time.Second,
		MaxEntries: 1000,
	}
}

// dirCache remembers directories that were built or found on the share.
// Failures are never cached.
type dirCache struct {
	mu          sync.Mutex
	config      DirCacheConfig
	entries     map[string]time.Time
	accessOrder []string // LRU tracking
}

// newDirCache creates a new directory cache with the given configuration.
func newDirCache(config DirCacheConfig) *dirCache {
	if config.MaxEntries == 0 {
		config.MaxEntries = 1000
	}
	if config.TTL == 0 {
		config.TTL = 30 * time.Second
	}

	return &dirCache{
		config:      config,
		entries:     make(map[string]time.Time),
		accessOrder: make([]string, 0, config.MaxEntries),
	}
}

// known reports whether dir was recently seen to exist.
func (c *dirCache) known(dir string) bool {
	if c.config.Disabled {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cachedAt, ok := c.entries[dir]
	if !ok {
		return false
	}

	if time.Since(cachedAt) > c.config.TTL {
		delete(c.entries, dir)
		c.untrack(dir)
		return false
	}

	c.trackAccess(dir)
	return true
}

// remember records dir and all of its ancestors as existing.
func (c *dirCache) remember(dir string) {
	if c.config.Disabled || dir == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for p := dir; p != ""; p = parentOf(p) {
		c.entries[p] = now
		c.trackAccess(p)
	}

	c.evictIfNeeded()
}

// forget drops dir and everything below it.
func (c *dirCache) forget(dir string) {
	if c.config.Disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for p := range c.entries {
		if p == dir || strings.HasPrefix(p, dir+Separator) {
			delete(c.entries, p)
			c.untrack(p)
		}
	}
}

// trackAccess tracks access order for LRU eviction.
func (c *dirCache) trackAccess(dir string) {
	c.untrack(dir)
	c.accessOrder = append(c.accessOrder, dir)
}

func (c *dirCache) untrack(dir string) {
	for i, p := range c.accessOrder {
		if p == dir {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			return
		}
	}
}

// evictIfNeeded evicts oldest entries if cache is full.
func (c *dirCache) evictIfNeeded() {
	for len(c.entries) > c.config.MaxEntries && len(c.accessOrder) > 0 {
		oldest := c.accessOrder[0]
		c.accessOrder = c.accessOrder[1:]
		delete(c.entries, oldest)
	}
}

// parentOf returns the parent of a canonical path, "" at the top.
func parentOf(p string) string {
	p = strings.TrimSuffix(p, Separator)
	i := strings.LastIndex(p, Separator)
	if i <= 0 {
		return ""
	}
	return p[:i]
}

// DirCacheStats provides statistics about cache usage.
type DirCacheStats struct {
	Enabled    bool
	Entries    int
	MaxEntries int
}

// Stats returns cache statistics.
func (c *dirCache) Stats() DirCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return DirCacheStats{
		Enabled:    !c.config.Disabled,
		Entries:    len(c.entries),
		MaxEntries: c.config.MaxEntries,
	}
}

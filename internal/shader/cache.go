// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"crypto/sha256"
	"sync"
)

// Cache holds compiled SPIR-V keyed by the SHA-256 of the WGSL source.
// When it grows past its soft limit, the least recently used quarter of
// the entries is evicted. Failed compilations are not cached.
//
// Cache is safe for concurrent use. The returned words are shared and
// must not be modified.
type Cache struct {
	mu        sync.Mutex
	entries   map[[sha256.Size]byte]*cacheEntry
	softLimit int
	tick      int64
	hits      uint64
	misses    uint64
	compile   func(string) ([]uint32, error)
}

type cacheEntry struct {
	words []uint32
	atime int64
}

// CacheStats reports cache occupancy and effectiveness.
type CacheStats struct {
	Len      int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// NewCache creates a cache compiling with Compile. A softLimit of 0 means
// unlimited.
func NewCache(softLimit int) *Cache {
	return &Cache{
		entries:   make(map[[sha256.Size]byte]*cacheEntry),
		softLimit: softLimit,
		compile:   Compile,
	}
}

var defaultCache = NewCache(16)

// Cached compiles wgsl through the process-wide cache, so a kernel
// program is compiled once per process however many devices build it.
func Cached(wgsl string) ([]uint32, error) {
	return defaultCache.Compile(wgsl)
}

// Compile returns the cached SPIR-V for wgsl, compiling it on a miss.
// Compilation runs under the cache lock so concurrent misses on the same
// source compile once.
func (c *Cache) Compile(wgsl string) ([]uint32, error) {
	key := sha256.Sum256([]byte(wgsl))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[key]; ok {
		e.atime = c.tick
		c.hits++
		return e.words, nil
	}
	c.misses++

	words, err := c.compile(wgsl)
	if err != nil {
		return nil, err
	}
	c.entries[key] = &cacheEntry{words: words, atime: c.tick}
	if c.softLimit > 0 && len(c.entries) > c.softLimit {
		c.evictOldest()
	}
	return words, nil
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Len: len(c.entries), Capacity: c.softLimit, Hits: c.hits, Misses: c.misses}
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[[sha256.Size]byte]*cacheEntry)
	c.tick, c.hits, c.misses = 0, 0, 0
}

// evictOldest trims the cache to three quarters of the soft limit.
// Caller must hold c.mu.
func (c *Cache) evictOldest() {
	target := max(c.softLimit*3/4, 1)
	for len(c.entries) > target {
		var oldest [sha256.Size]byte
		oldestTime := int64(-1)
		for k, e := range c.entries {
			if oldestTime < 0 || e.atime < oldestTime {
				oldest, oldestTime = k, e.atime
			}
		}
		delete(c.entries, oldest)
	}
}

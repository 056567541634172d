package cache

import (
	"sync/atomic"
	"time"
)

// LayeredCache keeps hot entries in memory in front of a persistent disk cache
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	misses     atomic.Int64
}

var _ Maintainer = (*LayeredCache)(nil)

// Stats counts lookups since the cache was created
type Stats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

// Get checks memory first, then disk. Disk hits are promoted to memory.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		c.memoryHits.Add(1)
		return val, true
	}
	if val, found := c.disk.Get(key); found {
		c.diskHits.Add(1)
		_ = c.memory.Set(key, val, 0)
		return val, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set writes both layers; ttl applies to disk only
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	_ = c.memory.Set(key, value, 0)
	return c.disk.Set(key, value, ttl)
}

func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}

// Purge drops a namespace from disk. The memory layer is flushed whole.
func (c *LayeredCache) Purge(namespace string) error {
	if err := c.disk.Purge(namespace); err != nil {
		return err
	}
	return c.memory.Clear()
}

// Usage reports the disk layer
func (c *LayeredCache) Usage() ([]Usage, error) {
	return c.disk.Usage()
}

// Stats returns the lookup counters
func (c *LayeredCache) Stats() Stats {
	return Stats{
		MemoryHits: c.memoryHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
	}
}

/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cache

import (
	"container/list"
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vodbridge/vodbridge/pkg/utils"
)

const (
	// DefaultMemEntries bounds the in-memory tier by entry count.
	DefaultMemEntries = 200

	janitorInterval = time.Hour
)

// Stats exposes hit/miss counters for observability.
type Stats struct {
	MemHits   uint64 `json:"mem_hits"`
	DiskHits  uint64 `json:"disk_hits"`
	Misses    uint64 `json:"misses"`
	MemCount  int    `json:"mem_count"`
	DiskBytes int64  `json:"disk_bytes"`
}

type memEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// Cache is the two-tier store: a count-bounded in-memory LRU in front of an
// on-disk tier. Loads through GetOrCompute are single-flight per key.
type Cache struct {
	mu      sync.Mutex
	lru     *list.List
	index   map[string]*list.Element
	maxMem  int
	disk    *diskTier
	group   singleflight.Group
	stopped chan struct{}
	once    sync.Once

	memHits  uint64
	diskHits uint64
	misses   uint64
}

// New opens a cache rooted at dir. A memEntries value <= 0 selects the
// default bound. The disk tier is advisory: if dir cannot be created the
// cache still works from memory.
func New(dir string, memEntries int) *Cache {
	if memEntries <= 0 {
		memEntries = DefaultMemEntries
	}
	disk, err := newDiskTier(dir)
	if err != nil {
		utils.WarnLog("Disk cache disabled: %v", err)
		disk = nil
	}
	return &Cache{
		lru:     list.New(),
		index:   map[string]*list.Element{},
		maxMem:  memEntries,
		disk:    disk,
		stopped: make(chan struct{}),
	}
}

// Get returns the value for key if present and unexpired. A disk hit is
// promoted into memory.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := time.Now()

	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		entry := el.Value.(*memEntry)
		if now.Before(entry.expireAt) {
			c.lru.MoveToFront(el)
			c.mu.Unlock()
			atomic.AddUint64(&c.memHits, 1)
			return entry.value, true
		}
		c.removeLocked(el)
	}
	c.mu.Unlock()

	if c.disk != nil {
		if value, expireAt, ok := c.disk.get(key); ok {
			c.putMem(key, value, expireAt)
			atomic.AddUint64(&c.diskHits, 1)
			return value, true
		}
	}

	atomic.AddUint64(&c.misses, 1)
	return nil, false
}

// Put stores value under key for ttl in both tiers. Disk write failures are
// logged and ignored; the memory entry still serves.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expireAt := time.Now().Add(ttl)
	c.putMem(key, value, expireAt)
	if c.disk != nil {
		if err := c.disk.put(key, value, expireAt); err != nil {
			utils.DebugLog("Disk cache write failed for %s: %v", key, err)
		}
	}
}

// GetOrCompute returns the cached value or runs loader to fill the cache.
// Concurrent callers with the same key share one in-flight load; a failed
// load is returned to every waiter and nothing is cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if ttl > 0 {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check after winning the flight: a concurrent Put may have
		// landed between the miss and here.
		if ttl > 0 {
			if value, ok := c.Get(key); ok {
				return value, nil
			}
		}
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			c.Put(key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate drops key from both tiers.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
	c.mu.Unlock()
	if c.disk != nil {
		c.disk.remove(key)
	}
}

// ClearExpired sweeps expired entries from both tiers.
func (c *Cache) ClearExpired() {
	now := time.Now()
	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if entry := el.Value.(*memEntry); !now.Before(entry.expireAt) {
			c.removeLocked(el)
		}
		el = prev
	}
	c.mu.Unlock()
	if c.disk != nil {
		c.disk.clearExpired()
	}
}

// Stats snapshots the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	memCount := c.lru.Len()
	c.mu.Unlock()

	var diskBytes int64
	if c.disk != nil {
		diskBytes = c.disk.sizeBytes()
	}
	return Stats{
		MemHits:   atomic.LoadUint64(&c.memHits),
		DiskHits:  atomic.LoadUint64(&c.diskHits),
		Misses:    atomic.LoadUint64(&c.misses),
		MemCount:  memCount,
		DiskBytes: diskBytes,
	}
}

// StartJanitor launches the hourly maintenance loop: expired sweep, then a
// size trim of the disk tier. It stops when ctx is cancelled or on Close.
func (c *Cache) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.ClearExpired()
				if c.disk != nil {
					c.disk.trim()
				}
			case <-ctx.Done():
				return
			case <-c.stopped:
				return
			}
		}
	}()
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stopped) })
}

func (c *Cache) putMem(key string, value []byte, expireAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		entry := el.Value.(*memEntry)
		entry.value = value
		entry.expireAt = expireAt
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&memEntry{key: key, value: value, expireAt: expireAt})
	c.index[key] = el

	for c.lru.Len() > c.maxMem {
		if back := c.lru.Back(); back != nil {
			c.removeLocked(back)
		}
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*memEntry)
	delete(c.index, entry.key)
	c.lru.Remove(el)
}

// Fingerprint derives a stable cache key from the logical parts of an
// operation. The config epoch is one of the parts, so a config swap
// implicitly invalidates everything from the previous epoch.
func Fingerprint(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Package cache implements the bounded LRU result cache keyed by
// (operation kind, canonical args). Entries are stored serialized so
// hits never alias live execution state.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Config holds result cache settings.
type Config struct {
	Enabled    bool
	DefaultTTL time.Duration
	MaxSize    int
	PerKindTTL map[string]time.Duration
}

// Stats are read-only cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

type entry struct {
	key       string
	kind      string
	value     []byte
	insertedAt time.Time
	expiresAt time.Time
}

// ResultCache is a bounded LRU with per-kind TTLs. Safe for concurrent
// use; get/set are linearizable per key.
type ResultCache struct {
	mu     sync.Mutex
	config Config
	ll     *list.List
	items  map[string]*list.Element
	stats  Stats
}

// New creates a cache from config.
func New(config Config) *ResultCache {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	return &ResultCache{
		config: config,
		ll:     list.New(),
		items:  make(map[string]*list.Element),
	}
}

// Key derives the cache key: lowercase hex SHA-256 over the operation
// kind and the canonical JSON of args. encoding/json emits map keys in
// sorted order, which makes the marshaled form canonical.
func Key(kind string, canonicalArgs any) (string, error) {
	js, err := json.Marshal(canonicalArgs)
	if err != nil {
		return "", fmt.Errorf("marshal cache key args: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(js)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TTLFor returns the effective TTL for an operation kind. Zero means
// the kind is not cached.
func (c *ResultCache) TTLFor(kind string) time.Duration {
	if !c.config.Enabled {
		return 0
	}
	if ttl, ok := c.config.PerKindTTL[kind]; ok {
		return ttl
	}
	return c.config.DefaultTTL
}

// Get returns the cached value for key, or ok=false on a miss or an
// expired entry. The value is deserialized fresh on every hit.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	ent := elem.Value.(*entry)
	if time.Now().After(ent.expiresAt) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false
	}

	c.ll.MoveToFront(elem)
	c.stats.Hits++

	var value any
	if err := json.Unmarshal(ent.value, &value); err != nil {
		c.removeLocked(elem)
		return nil, false
	}
	return value, true
}

// Set stores value under key with the given TTL. ttl <= 0 is a no-op.
func (c *ResultCache) Set(key, kind string, value any, ttl time.Duration) {
	if !c.config.Enabled || ttl <= 0 {
		return
	}
	js, err := json.Marshal(value)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry)
		ent.value = js
		ent.insertedAt = now
		ent.expiresAt = now.Add(ttl)
		c.ll.MoveToFront(elem)
		return
	}

	elem := c.ll.PushFront(&entry{
		key:        key,
		kind:       kind,
		value:      js,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	})
	c.items[key] = elem

	for c.ll.Len() > c.config.MaxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.stats.Evictions++
	}
}

// Invalidate drops entries for one kind, or everything when kind is
// empty.
func (c *ResultCache) Invalidate(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kind == "" {
		c.ll.Init()
		c.items = make(map[string]*list.Element)
		return
	}
	for elem := c.ll.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*entry).kind == kind {
			c.removeLocked(elem)
		}
		elem = next
	}
}

// Stats returns a snapshot of the counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.ll.Len()
	return s
}

func (c *ResultCache) removeLocked(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

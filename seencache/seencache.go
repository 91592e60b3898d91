// Package seencache implements the TTL-windowed dedup cache (C6) that sits
// between ingest and the KU store: CIDs seen within the TTL window are
// dropped before ever reaching kustore.PutTx.
package seencache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize is the default maximum number of tracked CIDs.
	DefaultSize = 10_000
	// DefaultTTL is the default dedup window.
	DefaultTTL = time.Hour
)

// Cache tracks recently seen CIDs for a bounded window.
type Cache struct {
	lru *lru.LRU[string, struct{}]
}

// New creates a cache with the given capacity and TTL. Passing size<=0 or
// ttl<=0 falls back to the §4.6 defaults.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen reports whether cid was already recorded within the TTL window,
// and records it regardless of the outcome so the window slides forward
// on every observation.
func (c *Cache) Seen(cid string) bool {
	_, ok := c.lru.Get(cid)
	c.lru.Add(cid, struct{}{})
	return ok
}

// Len returns the number of currently tracked entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianServe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianServe/services/gateway/observability"
)

// Cache sizing for buffered chat responses.
const (
	DefaultCacheCapacity = 10_000
	DefaultCacheTTL      = 60 * time.Second
)

// CacheStats is a point-in-time snapshot of cache activity.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stores int64 `json:"stores"`
}

// responseCache maps request fingerprints to buffered chat responses.
//
// # Description
//
// A TTL-bounded LRU: entries expire lazily on read and are evicted from the
// cold end when an insert pushes the size past capacity. Inserts overwrite.
// Concurrent identical requests may each insert after their own backend
// call; the overwrite is benign because equal fingerprints imply equivalent
// responses.
//
// Hit/miss/store counts are kept twice: as Prometheus counters for
// operators and as atomics for tests.
//
// # Thread Safety
//
// Safe for concurrent use. A single mutex guards the map and the recency
// list; Get mutates recency, so there is no read-lock fast path.
type responseCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // Front = most recent, Back = least recent
	capacity int
	ttl      time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64

	metrics *observability.GatewayMetrics
}

// cacheEntry is the list element payload.
type cacheEntry struct {
	key       string
	resp      datatypes.ChatCompletionResponse
	expiresAt time.Time
}

// newResponseCache creates a cache with the given bounds. Non-positive
// arguments fall back to the defaults.
func newResponseCache(capacity int, ttl time.Duration, metrics *observability.GatewayMetrics) *responseCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		metrics:  metrics,
	}
}

// Get returns the cached response for key. An expired entry is removed and
// reported as a miss.
func (c *responseCache) Get(key string) (datatypes.ChatCompletionResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.miss()
		return datatypes.ChatCompletionResponse{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.miss()
		return datatypes.ChatCompletionResponse{}, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	c.metrics.CacheHit()
	return entry.resp, true
}

// Put inserts or overwrites the response for key, resetting its TTL, and
// evicts from the cold end while over capacity.
func (c *responseCache) Put(key string, resp datatypes.ChatCompletionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.resp = resp
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&cacheEntry{key: key, resp: resp, expiresAt: expiresAt})
		c.entries[key] = elem
	}
	c.stores.Add(1)
	c.metrics.CacheStore()

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Len reports the live entry count, expired entries included until touched.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats snapshots the activity counters.
func (c *responseCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stores: c.stores.Load(),
	}
}

func (c *responseCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// removeLocked unlinks elem from both structures. Caller holds c.mu.
func (c *responseCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

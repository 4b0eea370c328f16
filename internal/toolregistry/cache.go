package toolregistry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/rediscache"
)

// ttlCache is a per-tool cache namespace: plain
// TTL expiry, no LRU eviction, grounded on a simplified form of
// internal/fetch's contentCache (tool results are small and low-volume
// compared to fetched page bodies, so capacity bounding isn't needed here).
// redis, when non-nil, backs the namespace with a store shared across
// restarts and process instances.
type ttlCache struct {
	mu sync.Mutex
	ttl time.Duration
	items map[string]ttlEntry
	redis *rediscache.Store
	namespace string
}

type ttlEntry struct {
	value any
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, items: make(map[string]ttlEntry)}
}

func (c *ttlCache) get(ctx context.Context, key string) (any, bool) {
	c.mu.Lock()
	entry, ok := c.items[key]
	if ok {
		if time.Now().After(entry.expiresAt) {
			delete(c.items, key)
			ok = false
		} else {
			value := entry.value
			c.mu.Unlock()
			return value, true
		}
	}
	c.mu.Unlock()

	if c.redis == nil {
		return nil, false
	}
	raw, found := c.redis.Get(ctx, c.redisKey(key))
	if !found {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("tool cache: redis entry unmarshal failed")
		return nil, false
	}
	c.mu.Lock()
	c.items[key] = ttlEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return value, true
}

func (c *ttlCache) put(ctx context.Context, key string, value any) {
	c.mu.Lock()
	c.items[key] = ttlEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("tool cache: redis entry marshal failed")
		return
	}
	c.redis.Set(ctx, c.redisKey(key), data)
}

func (c *ttlCache) redisKey(key string) string {
	return "toolregistry:" + c.namespace + ":" + key
}

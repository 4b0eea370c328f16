package fetch

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"agenttic-rag/internal/archive"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/rediscache"
)

// contentCache is an LRU+TTL cache of fetch Results keyed by normalized
// URL. Entries whose HTML plus extracted text exceeds maxContentSize are never stored
// in-memory; when an archiver is configured they are shipped to S3
// instead of being dropped outright. redis, when non-nil, backs the
// in-memory layer with a shared store so a cache warmed by one instance
// survives a restart or is visible to another.
type contentCache struct {
	mu sync.Mutex
	maxEntries int
	ttl time.Duration
	maxContentSize int64
	ll *list.List
	items map[string]*list.Element
	redis *rediscache.Store
	archiver archive.Archiver
}

type cacheEntry struct {
	key string
	result Result
	createdAt time.Time
	size int64
}

func newContentCache(maxEntries int, ttl time.Duration, maxContentSize int64) *contentCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxContentSize <= 0 {
		maxContentSize = 5 * 1024 * 1024
	}
	return &contentCache{
		maxEntries: maxEntries,
		ttl: ttl,
		maxContentSize: maxContentSize,
		ll: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *contentCache) get(ctx context.Context, key string) (Result, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		entry := el.Value.(*cacheEntry)
		if time.Since(entry.createdAt) > c.ttl {
			c.ll.Remove(el)
			delete(c.items, key)
			ok = false
		} else {
			c.ll.MoveToFront(el)
			result := entry.result
			c.mu.Unlock()
			return result, true
		}
	}
	c.mu.Unlock()

	if c.redis == nil {
		return Result{}, false
	}
	raw, found := c.redis.Get(ctx, c.redisKey(key))
	if !found {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("fetch cache: redis entry unmarshal failed")
		return Result{}, false
	}
	c.mu.Lock()
	c.insertLocked(key, result)
	c.mu.Unlock()
	return result, true
}

func (c *contentCache) put(ctx context.Context, key string, result Result) {
	size := int64(len(result.HTML) + len(result.Extracted))
	if size > c.maxContentSize {
		c.archiveOverflow(ctx, key, result)
		return
	}
	c.mu.Lock()
	c.insertLocked(key, result)
	c.mu.Unlock()
	c.writeThrough(ctx, key, result)
}

// archiveOverflow ships a too-large result to S3 when an archiver is
// configured, so it isn't silently dropped; a nil archiver is a no-op.
func (c *contentCache) archiveOverflow(ctx context.Context, key string, result Result) {
	if c.archiver == nil {
		return
	}
	if err := c.archiver.Archive(ctx, key, "text/html", []byte(result.HTML)); err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("fetch cache: archive overflow failed")
	}
}

func (c *contentCache) insertLocked(key string, result Result) {
	size := int64(len(result.HTML) + len(result.Extracted))
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.createdAt = time.Now()
		entry.size = size
		c.ll.MoveToFront(el)
		return
	}
	entry := &cacheEntry{key: key, result: result, createdAt: time.Now(), size: size}
	el := c.ll.PushFront(entry)
	c.items[key] = el
	c.evictOverCapacity()
}

// update mutates an existing entry's fields (used to cache the extracted
// text alongside the raw HTML computed by a prior FetchHTML call) without
// resetting its TTL.
func (c *contentCache) update(ctx context.Context, key string, fn func(*Result)) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	entry := el.Value.(*cacheEntry)
	fn(&entry.result)
	entry.size = int64(len(entry.result.HTML) + len(entry.result.Extracted))
	result := entry.result
	tooBig := entry.size > c.maxContentSize
	if tooBig {
		c.ll.Remove(el)
		delete(c.items, key)
	}
	c.mu.Unlock()
	if tooBig {
		c.archiveOverflow(ctx, key, result)
	} else {
		c.writeThrough(ctx, key, result)
	}
}

func (c *contentCache) writeThrough(ctx context.Context, key string, result Result) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("fetch cache: redis entry marshal failed")
		return
	}
	c.redis.Set(ctx, c.redisKey(key), data)
}

func (c *contentCache) redisKey(key string) string {
	return "fetch:content:" + key
}

func (c *contentCache) evictOverCapacity() {
	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			return
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

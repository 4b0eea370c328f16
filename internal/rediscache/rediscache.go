// Package rediscache provides an optional Redis-backed cache layer shared
// across process restarts, grounded on the RedisSkillsCache wrapper pattern:
// a thin client around go-redis that no-ops on a nil receiver so callers can
// hold a *Store unconditionally and skip the network round trip entirely
// when Redis isn't configured.
package rediscache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agenttic-rag/internal/config"
	"agenttic-rag/internal/logging"
)

// Store wraps a Redis client for plain byte-slice get/set with a fixed TTL
// per namespace. A nil *Store is valid and every method becomes a no-op.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Redis-backed Store when cfg.Enabled, pinging the server to
// fail fast on a bad address. Returns (nil, nil) when disabled.
func New(cfg config.RedisConfig, ttl time.Duration) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis cache ping: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Get returns the cached bytes for key, or (nil, false) on a miss or when
// the store is disabled.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.client == nil {
		return nil, false
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Log.WithError(err).WithField("key", key).Debug("rediscache_get_error")
		}
		return nil, false
	}
	return val, true
}

// Set caches value under key with the Store's configured TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		logging.Log.WithError(err).WithField("key", key).Debug("rediscache_set_error")
	}
}

// Close closes the underlying client; safe on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

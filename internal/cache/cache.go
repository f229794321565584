// Package cache provides an optional redis-backed expiring cache. It only
// holds data with a natural TTL; no invariant depends on it and every
// failure degrades to a database read.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/logger"
)

// StatusCache caches computed restriction status payloads with a TTL.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redis per the configuration. Returns nil (no cache)
// when redis is disabled.
func New(cfg *config.Config) (*StatusCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := time.Duration(cfg.Redis.StatusTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	logger.Infof("Redis cache connected: %s (status TTL %s)", cfg.Redis.Addr, ttl)
	return &StatusCache{client: client, ttl: ttl}, nil
}

// Close releases the redis connection.
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached payload for a key, or false on miss or error.
func (c *StatusCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Debugf("cache get %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

// Set stores a payload under the configured TTL. Errors are absorbed.
func (c *StatusCache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Debugf("cache set %s: %v", key, err)
	}
}

// Invalidate drops a key so the next read recomputes from the store.
func (c *StatusCache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Debugf("cache invalidate %s: %v", key, err)
	}
}

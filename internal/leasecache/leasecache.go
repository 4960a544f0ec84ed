// Package leasecache is a thin Redis-backed TTL lease store, used as a
// fast liveness signal that sits in front of the heavier Postgres
// DistributorInstance heartbeat row (spec.md §4.3 Liveness: "a
// DistributorInstance is considered alive if its heartbeat is within
// next_report_increment"). A missed or slow Redis write never blocks a
// heartbeat tick — Cache.Heartbeat's caller logs and continues, the same
// way internal/distributor already treats every per-tick failure.
package leasecache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis.Client for simple key TTL leases.
type Cache struct {
	rdb *redis.Client
}

// New builds a Cache from a redis:// URL (e.g. "redis://localhost:6379/0").
func New(addr string) (*Cache, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-configured client, the seam tests use
// to substitute a miniredis-backed client.
func NewFromClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Heartbeat refreshes key's lease for ttl, creating it if absent.
func (c *Cache) Heartbeat(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// Alive reports whether key's lease has not yet expired.
func (c *Cache) Alive(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

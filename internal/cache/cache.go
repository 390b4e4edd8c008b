// Package cache wraps the shared Redis/DragonflyDB connection used by the
// rate limiter (§4.5) and the DM-pair creation lock (§9, TOCTOU open
// question).
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb *redis.Client
}

func New(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing cache url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

func (c *Cache) Client() *redis.Client {
	return c.rdb
}

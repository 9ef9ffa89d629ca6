package redis

import (
	"context"
	"fmt"
	"time"
)

// Cache stores raw JSON payloads under a namespaced key.
// It is a hot layer only; callers keep the authoritative copy elsewhere.
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(kind, key string) string {
	return fmt.Sprintf("%s:cache:%s:%s", c.prefix, kind, key)
}

// GetRaw returns the payload stored for (kind, key). found is false on miss or when Redis is disabled.
func (c *Cache) GetRaw(ctx context.Context, kind, key string) ([]byte, bool, error) {
	if !c.client.Enabled() {
		return nil, false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(kind, key)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// SetRaw stores payload with the given TTL. Non-positive TTLs are ignored.
func (c *Cache) SetRaw(ctx context.Context, kind, key string, payload []byte, ttl time.Duration) error {
	if !c.client.Enabled() || ttl <= 0 {
		return nil
	}
	return c.client.Redis().Set(ctx, c.fullKey(kind, key), payload, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, kind, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.fullKey(kind, key)).Err()
}

// DeleteKind removes every key of one kind
func (c *Cache) DeleteKind(ctx context.Context, kind string) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	rdb := c.client.Redis()
	pattern := c.fullKey(kind, "*")

	var removed int
	iter := rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps recently served catalog payloads in redis so product and
// category listings stay fast and survive short upstream outages.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetRaw returns a cached payload. It reports whether the key existed.
func (c *Cache) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if c == nil || c.client == nil || key == "" {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// SetRaw stores a payload with the configured TTL.
func (c *Cache) SetRaw(ctx context.Context, key string, payload json.RawMessage) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, key, []byte(payload), c.ttl).Err()
}

// Invalidate drops the given keys after a catalog write.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

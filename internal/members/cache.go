package members

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zipbob/edge/revocation"
)

const defaultCacheTTL = 10 * time.Minute

// Cache keeps my-info projections in Redis, keyed by email.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCache creates a cache under prefix. ttl <= 0 uses ten minutes.
func NewCache(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "edge"
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{redis: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(email string) string {
	return c.prefix + ":member:info:" + email
}

// Get returns the cached projection, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, email string) (Info, bool, error) {
	raw, err := c.redis.Get(ctx, c.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("%w: %v", revocation.ErrRedisUnavailable, err)
	}

	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		// Undecodable entries are treated as misses and overwritten.
		return Info{}, false, nil
	}
	return info, true, nil
}

// Put stores info for its email.
func (c *Cache) Put(ctx context.Context, info Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(info.Email), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", revocation.ErrRedisUnavailable, err)
	}
	return nil
}

// Evict drops the entry for email.
func (c *Cache) Evict(ctx context.Context, email string) error {
	if err := c.redis.Del(ctx, c.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", revocation.ErrRedisUnavailable, err)
	}
	return nil
}

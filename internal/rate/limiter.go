package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments the window counter and arms its expiry in one step. A counter
// found without a TTL is re-armed so it can never outlive a window.
const incrementScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var incrementLua = redis.NewScript(incrementScript)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 100
	// DefaultWindow is the fixed window length.
	DefaultWindow = time.Second
	// DefaultPrefix namespaces counter keys.
	DefaultPrefix = "rate_limit"
)

// Config holds rate limiter tuning parameters. Zero values fall back to the
// package defaults.
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Limiter enforces a per-key request ceiling using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, ":")
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Limit returns the configured per-window ceiling.
func (l *Limiter) Limit() int { return l.config.Limit }

// Allow counts one request for key and reports whether it is within the
// ceiling. The (Limit+1)-th call inside a window returns false.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("rate limit key required")
	}

	count, err := l.incrementWithTTL(ctx, l.key(key), l.config.Window)
	if err != nil {
		return false, err
	}

	return count <= int64(l.config.Limit), nil
}

func (l *Limiter) key(key string) string {
	return l.config.Prefix + ":" + key
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

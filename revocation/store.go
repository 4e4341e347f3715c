package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every failure talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// LogoutMarker is the value written for blacklisted access tokens. Only key presence
// is significant.
const LogoutMarker = "logout"

const minTTL = time.Millisecond

// Compare-and-swap of the active refresh token. Returns 1 when rotated, 0 otherwise.
const rotateRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current or current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Removes the active refresh token and blacklists the access token in one step.
// Returns 0 when no active refresh token exists.
const revokeSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Store is the revocation store. It is safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a store whose keys are namespaced under prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "edge"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) refreshKey(subject string) string {
	return s.prefix + ":rt:" + subject
}

func (s *Store) blacklistKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return s.prefix + ":bl:" + hex.EncodeToString(sum[:])
}

// Get returns the raw value stored under key, or "" when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return val, nil
}

// Set overwrites key unconditionally.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < minTTL {
		return fmt.Errorf("invalid ttl %s", ttl)
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether a previously fetched value denotes a present entry.
func Exists(value string) bool {
	return value != ""
}

// SaveRefresh records token as the subject's only valid refresh token, evicting
// any previous one.
func (s *Store) SaveRefresh(ctx context.Context, subject, token string, ttl time.Duration) error {
	return s.Set(ctx, s.refreshKey(subject), token, ttl)
}

// ActiveRefresh returns the subject's current refresh token or "".
func (s *Store) ActiveRefresh(ctx context.Context, subject string) (string, error) {
	return s.Get(ctx, s.refreshKey(subject))
}

// RotateRefresh replaces the subject's refresh token with next only if the stored
// value is byte-equal to presented.
func (s *Store) RotateRefresh(ctx context.Context, subject, presented, next string, ttl time.Duration) (bool, error) {
	if ttl < minTTL {
		return false, fmt.Errorf("invalid ttl %s", ttl)
	}
	res, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(subject)},
		presented,
		next,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// RevokeSession deletes the subject's active refresh token and blacklists accessToken
// for ttl. It returns false, without blacklisting, when no active refresh token exists.
func (s *Store) RevokeSession(ctx context.Context, subject, accessToken string, ttl time.Duration) (bool, error) {
	if ttl < minTTL {
		return false, fmt.Errorf("invalid ttl %s", ttl)
	}
	res, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(subject), s.blacklistKey(accessToken)},
		LogoutMarker,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// IsBlacklisted reports whether accessToken has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(accessToken)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Ping measures round-trip latency to Redis.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

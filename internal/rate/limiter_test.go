package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestAllowRejectsRequestAboveCeiling(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{Limit: 3, Window: time.Second})
	defer done()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("expected 4th request in window to be rejected")
	}
}

func TestAllowResetsInNextWindow(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{Limit: 1, Window: time.Second})
	defer done()
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatal("second request should be rejected")
	}

	mr.FastForward(1100 * time.Millisecond)

	if ok, err := l.Allow(ctx, "k"); err != nil || !ok {
		t.Fatalf("request in next window: ok=%v err=%v", ok, err)
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{Limit: 1})
	defer done()
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("a should pass")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatal("b should pass independently of a")
	}
}

func TestCounterKeyUsesPrefixAndWindowTTL(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{})
	defer done()

	if _, err := l.Allow(context.Background(), "1.2.3.4"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !mr.Exists("rate_limit:1.2.3.4") {
		t.Fatalf("expected counter key, have %v", mr.Keys())
	}
	if ttl := mr.TTL("rate_limit:1.2.3.4"); ttl <= 0 || ttl > DefaultWindow {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if l.Limit() != DefaultLimit {
		t.Fatalf("expected default limit, got %d", l.Limit())
	}
}

// pexpireFailer fails every client-issued PEXPIRE.
type pexpireFailer struct{}

func (pexpireFailer) DialHook(next redis.DialHook) redis.DialHook { return next }

func (pexpireFailer) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "pexpire" {
			return errors.New("pexpire refused")
		}
		return next(ctx, cmd)
	}
}

func (pexpireFailer) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestCounterAlwaysExpiresWithWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	rdb.AddHook(pexpireFailer{})

	l := New(rdb, Config{Limit: 2, Window: time.Second})
	ctx := context.Background()

	if ok, err := l.Allow(ctx, "k"); err != nil || !ok {
		t.Fatalf("first hit: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("rate_limit:k"); ttl <= 0 || ttl > time.Second {
		t.Fatalf("counter ttl after first hit = %v, want (0, 1s]", ttl)
	}

	for i := 0; i < 3; i++ {
		_, _ = l.Allow(ctx, "k")
	}
	mr.FastForward(time.Hour)

	if ok, err := l.Allow(ctx, "k"); err != nil || !ok {
		t.Fatalf("hit after window: ok=%v err=%v", ok, err)
	}
}

func TestCounterWithoutTTLIsRearmed(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{Limit: 1, Window: time.Second})
	defer done()

	if err := mr.Set("rate_limit:k", "5"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if ok, _ := l.Allow(context.Background(), "k"); ok {
		t.Fatal("stale counter above ceiling should reject")
	}
	if ttl := mr.TTL("rate_limit:k"); ttl <= 0 {
		t.Fatalf("stale counter was not given a ttl: %v", ttl)
	}
	mr.FastForward(1100 * time.Millisecond)
	if ok, err := l.Allow(context.Background(), "k"); err != nil || !ok {
		t.Fatalf("hit after re-armed window: ok=%v err=%v", ok, err)
	}
}

func TestAllowReportsStoreFailure(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{})
	defer done()
	mr.Close()

	if _, err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

package revocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, "test"), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestSaveRefreshOverwritesPreviousSession(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "a@x.com", "r1", time.Hour); err != nil {
		t.Fatalf("save r1: %v", err)
	}
	if err := store.SaveRefresh(ctx, "a@x.com", "r2", time.Hour); err != nil {
		t.Fatalf("save r2: %v", err)
	}

	got, err := store.ActiveRefresh(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("active refresh: %v", err)
	}
	if got != "r2" {
		t.Fatalf("expected r2, got %q", got)
	}
}

func TestActiveRefreshExpiresWithTTL(t *testing.T) {
	store, mr, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "a@x.com", "r1", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := store.ActiveRefresh(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("active refresh: %v", err)
	}
	if Exists(got) {
		t.Fatalf("expected entry to expire, got %q", got)
	}
}

func TestRotateRefreshRequiresExactMatch(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if ok, err := store.RotateRefresh(ctx, "a@x.com", "r1", "r2", time.Hour); err != nil || ok {
		t.Fatalf("rotate without entry: ok=%v err=%v", ok, err)
	}

	if err := store.SaveRefresh(ctx, "a@x.com", "r1", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ok, err := store.RotateRefresh(ctx, "a@x.com", "r1x", "r2", time.Hour); err != nil || ok {
		t.Fatalf("rotate with mismatch: ok=%v err=%v", ok, err)
	}
	if ok, err := store.RotateRefresh(ctx, "a@x.com", "r1", "r2", time.Hour); err != nil || !ok {
		t.Fatalf("rotate with match: ok=%v err=%v", ok, err)
	}
	if ok, err := store.RotateRefresh(ctx, "a@x.com", "r1", "r3", time.Hour); err != nil || ok {
		t.Fatalf("rotate with superseded token: ok=%v err=%v", ok, err)
	}

	got, _ := store.ActiveRefresh(ctx, "a@x.com")
	if got != "r2" {
		t.Fatalf("expected r2 to stay active, got %q", got)
	}
}

func TestRotateRefreshSingleWinnerUnderConcurrency(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "a@x.com", "r1", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.RotateRefresh(ctx, "a@x.com", "r1", "next", time.Hour)
			if err != nil {
				t.Errorf("rotate: %v", err)
			}
			wins <- ok
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for ok := range wins {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", count)
	}
}

func TestRevokeSessionBlacklistsAccessAndIsNotIdempotent(t *testing.T) {
	store, mr, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.SaveRefresh(ctx, "a@x.com", "r1", time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := store.RevokeSession(ctx, "a@x.com", "access-1", 30*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first revoke: ok=%v err=%v", ok, err)
	}

	black, err := store.IsBlacklisted(ctx, "access-1")
	if err != nil || !black {
		t.Fatalf("expected access-1 blacklisted: black=%v err=%v", black, err)
	}
	if got, _ := store.ActiveRefresh(ctx, "a@x.com"); Exists(got) {
		t.Fatalf("expected active refresh removed, got %q", got)
	}

	ok, err = store.RevokeSession(ctx, "a@x.com", "access-2", 30*time.Minute)
	if err != nil || ok {
		t.Fatalf("second revoke: ok=%v err=%v", ok, err)
	}
	if black, _ := store.IsBlacklisted(ctx, "access-2"); black {
		t.Fatal("access-2 must not be blacklisted by a failed revoke")
	}

	mr.FastForward(31 * time.Minute)
	if black, _ := store.IsBlacklisted(ctx, "access-1"); black {
		t.Fatal("blacklist entry should expire with its TTL")
	}
}

func TestBlacklistPresenceRegardlessOfValue(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Set(ctx, store.blacklistKey("tok"), "anything", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	black, err := store.IsBlacklisted(ctx, "tok")
	if err != nil || !black {
		t.Fatalf("expected presence to mean revoked: black=%v err=%v", black, err)
	}
}

func TestGenericOperations(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	if v, err := store.Get(ctx, "k"); err != nil || v != "" {
		t.Fatalf("get missing: v=%q err=%v", v, err)
	}
	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := store.Get(ctx, "k"); v != "v" {
		t.Fatalf("expected v, got %q", v)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if err := store.Set(ctx, "k", "v", 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	store, mr, done := newStoreTest(t)
	defer done()
	mr.Close()

	_, err := store.IsBlacklisted(context.Background(), "tok")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

package edge

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithMembers(&fakeMembers{}).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing member lookup to fail")
	}

	cfg := testConfig()
	cfg.JWT.Secret = ""
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithMembers(&fakeMembers{}).Build(); err == nil {
		t.Fatal("expected missing secret to fail")
	}

	cfg = testConfig()
	cfg.JWT.Secret = "short"
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithMembers(&fakeMembers{}).Build(); err == nil {
		t.Fatal("expected short hs256 secret to fail at startup")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithMembers(&fakeMembers{})
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

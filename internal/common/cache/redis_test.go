package cache_test

import (
	"context"
	"testing"
	"time"

	"lessonjudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("expected empty miss, got %q (%v)", v, err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("expected v, got %q", v)
	}
	ok, err := c.SetNX(ctx, "k", "other", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected SetNX to fail on existing key, got %v (%v)", ok, err)
	}
	if n, _ := c.Incr(ctx, "counter"); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if err := c.Expire(ctx, "counter", time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if v, _ := c.Get(ctx, "counter"); v != "" {
		t.Fatalf("expected counter to expire, got %q", v)
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if ttl, _ := c.TTL(ctx, "k"); ttl >= 0 {
		t.Fatalf("expected negative ttl for missing key, got %s", ttl)
	}
	if _, err := cache.NewRedisCacheWithClient(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

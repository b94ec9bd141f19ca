package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func testCache(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis tests")
	}
	c, err := NewRedisCache(context.Background(), Config{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisCache error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	key := "offramp:test:" + t.Name()

	if err := c.Set(ctx, key, "value", time.Minute); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	got, err := c.Get(ctx, key)
	if err != nil || got != "value" {
		t.Fatalf("Get = %q, %v; want value", got, err)
	}

	keys, err := c.Keys(ctx, "offramp:test:")
	if err != nil || len(keys) == 0 {
		t.Errorf("Keys = %v, %v", keys, err)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	got, err = c.Get(ctx, key)
	if err != nil || got != "" {
		t.Errorf("Get after delete = %q, %v; want empty", got, err)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := NewRedisCache(ctx, Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("NewRedisCache should fail for an unreachable server")
	}
}

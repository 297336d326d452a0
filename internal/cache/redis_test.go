package cache

import (
	"context"
	"testing"
	"time"

	"trendbot/internal/logging"
)

func TestRedisFailsOpenWhenUnreachable(t *testing.T) {
	t.Parallel()
	// Port 1 refuses connections, so every operation hits a transport
	// error. The store must degrade to misses instead of surfacing it.
	r, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, logging.Nop())
	if err != nil {
		t.Fatalf("NewRedis must not fail on an unreachable server: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	r.Set(ctx, "crypto_trending", "payload", time.Minute)

	if v, ok := r.Get(ctx, "crypto_trending"); ok || v != "" {
		t.Fatalf("Get = (%q, %v), want a miss", v, ok)
	}
}

func TestNewRedisRequiresAddr(t *testing.T) {
	t.Parallel()
	if _, err := NewRedis(RedisConfig{}, logging.Nop()); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

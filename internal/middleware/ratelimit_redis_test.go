package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Needs a Redis instance on localhost:6379; skips when none is running.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("redis not available, skipping")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testRedisKey(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func TestRedisStoreAllow(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}

	key := testRedisKey("allow")
	ctx := context.Background()
	defer client.Del(ctx, "briefcast:ratelimit:"+key)

	for i := 0; i < 5; i++ {
		if allowed, _ := store.Allow(ctx, key, config); !allowed {
			t.Fatalf("request %d: blocked under the limit", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, key, config)
	if allowed {
		t.Error("sixth request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want between 1 and 60", retryAfter)
	}
}

func TestRedisStoreKeysIndependent(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	key1 := testRedisKey("keys-a")
	key2 := testRedisKey("keys-b")
	ctx := context.Background()
	defer client.Del(ctx, "briefcast:ratelimit:"+key1, "briefcast:ratelimit:"+key2)

	allowed1, _ := store.Allow(ctx, key1, config)
	allowed2, _ := store.Allow(ctx, key2, config)
	if !allowed1 || !allowed2 {
		t.Fatal("each key should get its own window")
	}

	blocked1, _ := store.Allow(ctx, key1, config)
	blocked2, _ := store.Allow(ctx, key2, config)
	if blocked1 || blocked2 {
		t.Error("both keys should be exhausted now")
	}
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRateLimitStore(client)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 100 * time.Millisecond}

	key := testRedisKey("expiry")
	ctx := context.Background()
	defer client.Del(ctx, "briefcast:ratelimit:"+key)

	_, _ = store.Allow(ctx, key, config)
	if allowed, _ := store.Allow(ctx, key, config); allowed {
		t.Fatal("second request in window should be blocked")
	}

	time.Sleep(150 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, key, config); !allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRedisStoreFailsOpen(t *testing.T) {
	// Unreachable Redis: the limiter must allow the request rather than
	// take the API down with it.
	client := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	defer client.Close()

	m, reg := newTestMetrics(t)
	store := NewRedisRateLimitStore(client, m)
	config := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}

	allowed, retryAfter := store.Allow(context.Background(), "unreachable", config)
	if !allowed {
		t.Error("store should fail open when redis is unreachable")
	}
	if retryAfter != 0 {
		t.Errorf("retryAfter = %d, want 0 on fail-open", retryAfter)
	}

	errs := gatherFamily(t, reg, MetricRateLimitRedisErrors)
	if errs == nil {
		t.Fatal("redis error counter not found")
	}
	if got := errs.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("fail-open count = %f, want 1", got)
	}
}

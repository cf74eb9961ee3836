package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisCache(client, "test")
}

// exercise runs the same contract against every Service implementation.
func exercise(t *testing.T, c Service) {
	ctx := context.Background()

	var miss payload
	if err := c.Get(ctx, "nope", &miss); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	in := payload{Name: "gold", Price: 6123.5}
	if err := c.Set(ctx, "trends:gold:30", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out payload
	if err := c.Get(ctx, "trends:gold:30", &out); err != nil || out != in {
		t.Fatalf("get: %+v %v", out, err)
	}

	_ = c.Set(ctx, "trends:gold:7", in, time.Minute)
	_ = c.Set(ctx, "job:1", in, time.Minute)
	if err := c.DeleteByPattern(ctx, "trends:*"); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}
	if err := c.Get(ctx, "trends:gold:7", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("pattern delete left key: %v", err)
	}
	if err := c.Get(ctx, "job:1", &out); err != nil {
		t.Fatalf("unrelated key removed: %v", err)
	}

	ok, err := c.TryLock(ctx, "lock:gold", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: %v %v", ok, err)
	}
	if ok, _ := c.TryLock(ctx, "lock:gold", time.Minute); ok {
		t.Fatalf("second lock must fail")
	}
	if err := c.Unlock(ctx, "lock:gold"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := c.TryLock(ctx, "lock:gold", time.Minute); !ok {
		t.Fatalf("lock after unlock must succeed")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exercise(t, c)
}

func TestRedisCache(t *testing.T) {
	mr, c := newRedis(t)
	exercise(t, c)
	if !mr.Exists("test:job:1") {
		t.Fatalf("keys must carry the prefix, have %v", mr.Keys())
	}
}

func TestLayeredCache(t *testing.T) {
	_, rc := newRedis(t)
	c := NewLayeredCache(rc, 10, time.Minute)
	exercise(t, c)
}

func TestLayeredCacheFillsL1(t *testing.T) {
	ctx := context.Background()
	mr, rc := newRedis(t)
	c := NewLayeredCache(rc, 10, time.Minute)
	_ = rc.Set(ctx, "k", payload{Name: "x"}, 0)

	var out payload
	if err := c.Get(ctx, "k", &out); err != nil || out.Name != "x" {
		t.Fatalf("read through: %+v %v", out, err)
	}
	mr.FlushAll()
	if err := c.Get(ctx, "k", &out); err != nil {
		t.Fatalf("expected L1 hit after redis flush: %v", err)
	}
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	_ = c.Set(ctx, "short", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)
	var v int
	if err := c.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired key returned: %v", err)
	}

	_ = c.Set(ctx, "a", 1, 0)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "b", 2, 0)
	time.Sleep(time.Millisecond)
	_ = c.Get(ctx, "a", &v) // a is now more recent than b
	_ = c.Set(ctx, "c", 3, 0)
	if err := c.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("least recently used key should be evicted")
	}
	if err := c.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("a evicted: %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("trends", "gold", "22K"); got != "trends:gold:22K" {
		t.Fatalf("key: %s", got)
	}
}

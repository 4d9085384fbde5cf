package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

func TestCloseOwnership(t *testing.T) {
	ctx := context.Background()
	c := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	borrowed, _ := New(Config{Client: c})
	if err := borrowed.Close(ctx); err != nil {
		t.Fatal(err)
	}
	owned, _ := New(Config{Client: c, CloseClient: true})
	if err := owned.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := owned.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// newLive connects to GIST_TEST_REDIS (host:port) or skips.
func newLive(t *testing.T, idle time.Duration) (*Redis, goredis.UniversalClient) {
	t.Helper()
	addr := os.Getenv("GIST_TEST_REDIS")
	if addr == "" {
		t.Skip("GIST_TEST_REDIS not set")
	}
	c := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := c.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	p, err := New(Config{Client: c, Prefix: "gist-test:" + t.Name() + ":", IdleTTL: idle, CloseClient: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, c
}

func TestLiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newLive(t, 0)

	if _, ok, err := p.Get(ctx, "attr:gist@size@x:v3:1"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "attr:gist@size@x:v3:1", []byte{0, 0, 0, 1, 1, 7}); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "attr:gist@size@x:v3:1")
	if err != nil || !ok || len(b) != 6 || b[5] != 7 {
		t.Fatalf("Get: %v ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, "attr:gist@size@x:v3:1"); err != nil {
		t.Fatal(err)
	}
}

func TestLiveIdleTTLSlidesOnRead(t *testing.T) {
	ctx := context.Background()
	p, c := newLive(t, time.Hour)

	if _, err := p.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := c.Expire(ctx, p.prefix+"k", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := p.Get(ctx, "k"); !ok || err != nil {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	ttl, err := c.TTL(ctx, p.prefix+"k").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= time.Minute {
		t.Fatalf("read did not slide the expiry: ttl=%v", ttl)
	}
}

package imagegen

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryProgressStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryProgressStore(time.Minute)

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatalf("expected unknown key to be absent")
	}
	if err := s.Set(ctx, "  ", Progress{Status: StatusDone}); err != nil {
		t.Fatalf("blank key should be ignored: %v", err)
	}

	want := Progress{Status: StatusChecking, ID: "job-1", Polls: 3, UpdatedAt: 42}
	if err := s.Set(ctx, "k1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMemoryProgressStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryProgressStore(time.Millisecond)
	_ = s.Set(ctx, "k", Progress{Status: StatusSubmitted})
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestRedisProgressStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisProgressStore(client, 10*time.Minute)

	if _, ok, err := s.Get(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected miss without error, ok=%v err=%v", ok, err)
	}

	want := Progress{Status: StatusDone, ID: "abc", Polls: 4, WaitedSecs: 12, UpdatedAt: time.Now().UnixMilli()}
	if err := s.Set(ctx, "avatar-r1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("image:progress:avatar-r1") {
		t.Fatalf("expected prefixed key in redis")
	}
	if ttl := mr.TTL("image:progress:avatar-r1"); ttl != 10*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	got, ok, err := s.Get(ctx, "avatar-r1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRedisProgressStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_ = mr.Set("image:progress:bad", "{not json")
	s := NewRedisProgressStore(client, 0)
	if _, _, err := s.Get(context.Background(), "bad"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewRedisProgressStoreNilClient(t *testing.T) {
	if s := NewRedisProgressStore(nil, time.Minute); s != nil {
		t.Fatalf("expected nil store for nil client")
	}
}

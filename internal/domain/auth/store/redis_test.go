package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := NewRedis(Config{
		TTL:   time.Hour,
		Redis: &RedisConfig{Addr: mr.Addr(), Prefix: "test:refresh:"},
	})
	if err != nil {
		t.Fatalf("failed to build redis store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	session := Session{Token: "tok-1", UserID: 3, Username: "yui"}
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, err := s.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected session to exist")
	}
	if got.UserID != 3 || got.Username != "yui" {
		t.Errorf("unexpected session: %+v", got)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("expected missing token to report not found")
	}
}

func TestRedisStore_RemoveAndStats(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	for _, session := range []Session{
		{Token: "a", UserID: 1},
		{Token: "b", UserID: 2},
	} {
		if err := s.Save(ctx, session); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected removed session to be gone")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["total"].(int) != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestRedisStore_RemoveUser(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	for _, session := range []Session{
		{Token: "a", UserID: 9},
		{Token: "b", UserID: 9},
		{Token: "c", UserID: 4},
	} {
		if err := s.Save(ctx, session); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := s.RemoveUser(ctx, 9); err != nil {
		t.Fatalf("remove user failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Error("expected user 9 sessions to be revoked")
	}
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Error("expected user 4 session to survive")
	}
}

package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	s := NewMemory(Config{TTL: time.Hour})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	ctx := context.Background()
	session := Session{Token: "tok-1", UserID: 7, Username: "shiro-fan"}
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
	if got.UserID != 7 || got.Username != "shiro-fan" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Error("expected expiry to be filled from TTL")
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("expected missing token to report not found")
	}
}

func TestMemoryStore_ExpiredSessionNotReturned(t *testing.T) {
	s := NewMemory(Config{TTL: time.Hour})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	ctx := context.Background()
	expired := Session{
		Token:     "tok-old",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := s.Save(ctx, expired); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, ok, _ := s.Get(ctx, "tok-old"); ok {
		t.Error("expected expired session to be rejected")
	}

	if err := s.CleanupExpired(ctx); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["total"].(int) != 0 {
		t.Errorf("expected expired session to be removed, stats: %v", stats)
	}
}

func TestMemoryStore_RemoveUser(t *testing.T) {
	s := NewMemory(Config{TTL: time.Hour})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	ctx := context.Background()
	for _, session := range []Session{
		{Token: "a", UserID: 1},
		{Token: "b", UserID: 1},
		{Token: "c", UserID: 2},
	} {
		if err := s.Save(ctx, session); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := s.RemoveUser(ctx, 1); err != nil {
		t.Fatalf("remove user failed: %v", err)
	}

	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected user 1 sessions to be revoked")
	}
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Error("expected user 2 session to survive")
	}
}

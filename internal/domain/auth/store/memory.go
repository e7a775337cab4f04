package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	sessions    map[string]Session
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory 构造内存存储，后台定期回收过期会话
func NewMemory(cfg Config) Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		sessions:    make(map[string]Session),
		ttl:         ttl,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Save(_ context.Context, session Session) error {
	if session.Token == "" {
		return fmt.Errorf("session token required")
	}
	now := time.Now()
	if session.IssuedAt.IsZero() {
		session.IssuedAt = now
	}
	if session.ExpiresAt.IsZero() && s.ttl > 0 {
		session.ExpiresAt = now.Add(s.ttl)
	}

	s.mutex.Lock()
	s.sessions[session.Token] = session
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, token string) (Session, bool, error) {
	s.mutex.RLock()
	session, ok := s.sessions[token]
	s.mutex.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if session.Expired(time.Now()) {
		return Session{}, false, nil
	}
	return session, true, nil
}

func (s *memoryStore) Remove(_ context.Context, token string) error {
	s.mutex.Lock()
	delete(s.sessions, token)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) RemoveUser(_ context.Context, userID uint) error {
	s.mutex.Lock()
	for token, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, token)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for token, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, token)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := len(s.sessions)
	active := 0
	for _, session := range s.sessions {
		if !session.Expired(now) {
			active++
		}
	}
	return map[string]any{
		"type":        "memory",
		"total":       total,
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

// Package store 刷新令牌存储，支持内存与Redis两种后端。
package store

import (
	"context"
	"fmt"
	"time"
)

// Session 刷新令牌对应的会话记录
type Session struct {
	Token     string    `json:"token"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired 判断会话是否已过期
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store 刷新令牌存储接口
type Store interface {
	Save(ctx context.Context, session Session) error
	Get(ctx context.Context, token string) (Session, bool, error)
	Remove(ctx context.Context, token string) error
	RemoveUser(ctx context.Context, userID uint) error
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config 存储后端选择参数
type Config struct {
	Type   string
	TTL    time.Duration
	Redis  *RedisConfig
	Memory *MemoryConfig
}

// MemoryConfig 内存后端参数
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig Redis后端连接参数
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// New 根据配置选择存储后端，默认内存
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(cfg), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported auth store type: %s", cfg.Type)
	}
}

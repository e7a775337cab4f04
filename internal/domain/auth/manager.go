// Package auth 账号鉴权：签发/校验JWT访问令牌，刷新令牌经存储后端轮换。
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"companion-server-go/internal/domain/auth/store"
	"companion-server-go/internal/platform/config"
	platformerrors "companion-server-go/internal/platform/errors"
	"companion-server-go/internal/platform/logging"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims 访问令牌携带的身份信息
type Claims struct {
	UserID   uint
	Username string
}

// TokenPair 一次签发产生的令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager 鉴权管理器
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   store.Store
	logger     *logging.Logger
}

// NewManager 根据配置构造鉴权管理器
func NewManager(cfg config.AuthConfig, logger *logging.Logger) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, platformerrors.New(platformerrors.KindAuth, "auth.new", "鉴权密钥不能为空")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	storeCfg := store.Config{
		Type: cfg.Store.Type,
		TTL:  refreshTTL,
		Redis: &store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		},
		Memory: &store.MemoryConfig{
			GCInterval: cfg.Store.Memory.Cleanup,
		},
	}
	if cfg.Store.Expiry > 0 {
		storeCfg.TTL = cfg.Store.Expiry
	}
	sessions, err := store.New(storeCfg)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindAuth, "auth.new", "初始化令牌存储失败", err)
	}

	logger.InfoTag("认证", "鉴权已启用，存储后端: %s", storeCfg.Type)
	return &Manager{
		secret:     []byte(cfg.Secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
		logger:     logger,
	}, nil
}

// Issue 为用户签发访问令牌与刷新令牌
func (m *Manager) Issue(ctx context.Context, userID uint, username string) (TokenPair, error) {
	access, err := m.signAccess(userID, username)
	if err != nil {
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindAuth, "auth.issue", "签发访问令牌失败", err)
	}

	now := time.Now()
	refresh := uuid.NewString()
	session := store.Session{
		Token:     refresh,
		UserID:    userID,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	if err := m.sessions.Save(ctx, session); err != nil {
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindAuth, "auth.issue", "保存刷新令牌失败", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess 校验访问令牌并还原身份信息
func (m *Manager) VerifyAccess(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, platformerrors.Wrap(platformerrors.KindAuth, "auth.verify", "令牌无效", err)
	}
	if !token.Valid {
		return Claims{}, platformerrors.New(platformerrors.KindAuth, "auth.verify", "令牌无效")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, platformerrors.New(platformerrors.KindAuth, "auth.verify", "令牌声明格式错误")
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return Claims{}, platformerrors.New(platformerrors.KindAuth, "auth.verify", "令牌缺少用户标识")
	}
	name, _ := claims["name"].(string)
	return Claims{UserID: uint(sub), Username: name}, nil
}

// Refresh 用刷新令牌换取新令牌对，旧刷新令牌随即作废
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	session, ok, err := m.sessions.Get(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, platformerrors.Wrap(platformerrors.KindAuth, "auth.refresh", "读取刷新令牌失败", err)
	}
	if !ok {
		return TokenPair{}, platformerrors.New(platformerrors.KindAuth, "auth.refresh", "刷新令牌无效或已过期")
	}

	if err := m.sessions.Remove(ctx, refreshToken); err != nil {
		m.logger.WarnTag("认证", "旧刷新令牌删除失败: %v", err)
	}
	return m.Issue(ctx, session.UserID, session.Username)
}

// Logout 作废指定刷新令牌
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return m.sessions.Remove(ctx, refreshToken)
}

// RevokeUser 作废用户的所有刷新令牌
func (m *Manager) RevokeUser(ctx context.Context, userID uint) error {
	return m.sessions.RemoveUser(ctx, userID)
}

// Stats 存储后端统计信息
func (m *Manager) Stats(ctx context.Context) (map[string]any, error) {
	return m.sessions.Stats(ctx)
}

// Close 释放令牌存储资源
func (m *Manager) Close() error {
	return m.sessions.Close(context.Background())
}

func (m *Manager) signAccess(userID uint, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  float64(userID),
		"name": username,
		"iat":  now.Unix(),
		"exp":  now.Add(m.accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

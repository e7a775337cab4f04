// Package webapi 对外HTTP接口：健康检查、角色与音色查询、一问一答、账号与自定义角色管理。
package webapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"companion-server-go/internal/app/services"
	"companion-server-go/internal/domain/auth"
	"companion-server-go/internal/domain/character"
	"companion-server-go/internal/domain/memory"
	httptransport "companion-server-go/internal/transport/http"
	"companion-server-go/internal/platform/config"
	platformerrors "companion-server-go/internal/platform/errors"
	"companion-server-go/internal/platform/logging"
)

const userIDKey = "auth.user_id"

// Service WebAPI服务的HTTP传输层实现
type Service struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *character.Registry
	chat     *services.ChatService
	store    *memory.Store
	auth     *auth.Manager // 为nil时表示未启用鉴权
	started  time.Time
}

// NewService 创建WebAPI服务实例
func NewService(cfg *config.Config, logger *logging.Logger, registry *character.Registry, chat *services.ChatService, store *memory.Store, authMgr *auth.Manager) (*Service, error) {
	if cfg == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "webapi.new", "config is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "webapi.new", "logger is required")
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		chat:     chat,
		store:    store,
		auth:     authMgr,
		started:  time.Now(),
	}, nil
}

// AuthMiddleware 校验Bearer令牌并把用户ID写入请求上下文
func (s *Service) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.auth == nil {
			httptransport.RespondError(c, http.StatusServiceUnavailable, "認証機能は無効です", nil)
			c.Abort()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			httptransport.RespondError(c, http.StatusUnauthorized, "認証トークンがありません", nil)
			c.Abort()
			return
		}
		claims, err := s.auth.VerifyAccess(token)
		if err != nil {
			httptransport.RespondError(c, http.StatusUnauthorized, "認証トークンが無効です", nil)
			c.Abort()
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// Register 注册公共路由和需要鉴权的路由
func (s *Service) Register(api, secured *gin.RouterGroup) {
	api.GET("/health", s.handleHealth)
	api.GET("/characters", s.handleCharacters)
	api.GET("/voices", s.handleVoices)
	api.POST("/chat", s.handleChat)
	api.GET("/history/:session_id", s.handleHistory)
	api.GET("/user_info/:session_id", s.handleUserInfoGet)
	api.PUT("/user_info/:session_id", s.handleUserInfoUpdate)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/refresh", s.handleRefresh)
	authGroup.POST("/logout", s.handleLogout)

	if secured != nil {
		secured.GET("/me", s.handleMe)
		secured.GET("/characters/custom", s.handleCustomList)
		secured.POST("/characters/custom", s.handleCustomCreate)
		secured.PUT("/characters/custom/:id", s.handleCustomUpdate)
		secured.DELETE("/characters/custom/:id", s.handleCustomDelete)
	}

	s.logger.InfoTag("HTTP", "WebAPI路由注册完成")
}

func (s *Service) handleHealth(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}, "")
}

func (s *Service) handleCharacters(c *gin.Context) {
	type characterView struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		VoiceID   string `json:"voice_id"`
		TechAware bool   `json:"tech_aware"`
	}
	list := s.registry.List()
	out := make([]characterView, 0, len(list))
	for _, ch := range list {
		out = append(out, characterView{
			ID:        ch.ID,
			Name:      ch.Name,
			VoiceID:   ch.VoiceID,
			TechAware: ch.TechAware,
		})
	}
	httptransport.RespondSuccess(c, http.StatusOK, out, "")
}

func (s *Service) handleVoices(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, s.cfg.TTS.Voices, "")
}

// handleChat 非流式一问一答，语音走WebSocket
func (s *Service) handleChat(c *gin.Context) {
	var req struct {
		SessionID   string `json:"session_id"`
		CharacterID string `json:"character_id"`
		Text        string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "textは必須です", nil)
		return
	}
	reply, label := s.chat.GenerateReply(c.Request.Context(), req.SessionID, req.CharacterID, req.Text)
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"reply":   reply,
		"emotion": label,
	}, "")
}

func (s *Service) handleHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	limit := s.cfg.Memory.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	history, err := s.store.History(sessionID, limit)
	if err != nil {
		s.logger.ErrorTag("HTTP", "查询历史失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "履歴の取得に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, history, "")
}

func (s *Service) handleUserInfoGet(c *gin.Context) {
	info, err := s.store.GetUserInfo(c.Param("session_id"))
	if err != nil {
		s.logger.ErrorTag("HTTP", "查询用户画像失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "ユーザー情報の取得に失敗しました", nil)
		return
	}
	if info == nil {
		// 未登録セッションは空オブジェクトを返す
		httptransport.RespondSuccess(c, http.StatusOK, gin.H{}, "")
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, info, "")
}

func (s *Service) handleUserInfoUpdate(c *gin.Context) {
	var req struct {
		Name        string         `json:"name"`
		Preferences map[string]any `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "リクエストの形式が正しくありません", nil)
		return
	}
	if err := s.store.UpsertUserInfo(c.Param("session_id"), req.Name, req.Preferences); err != nil {
		s.logger.ErrorTag("HTTP", "保存用户画像失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "ユーザー情報の保存に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "保存しました")
}

func (s *Service) handleRegister(c *gin.Context) {
	if s.auth == nil {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "認証機能は無効です", nil)
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "username/email/passwordは必須です", nil)
		return
	}

	if existing, err := s.store.UserByUsername(req.Username); err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "登録に失敗しました", nil)
		return
	} else if existing != nil {
		httptransport.RespondError(c, http.StatusConflict, "このユーザー名は既に使われています", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "パスワードが不正です", nil)
		return
	}
	user := &memory.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(user); err != nil {
		s.logger.ErrorTag("HTTP", "创建用户失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "登録に失敗しました", nil)
		return
	}

	pair, err := s.auth.Issue(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "トークンの発行に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, gin.H{
		"user":   user,
		"tokens": pair,
	}, "")
}

func (s *Service) handleLogin(c *gin.Context) {
	if s.auth == nil {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "認証機能は無効です", nil)
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "username/passwordは必須です", nil)
		return
	}

	user, err := s.store.UserByUsername(req.Username)
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "ログインに失敗しました", nil)
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		httptransport.RespondError(c, http.StatusUnauthorized, "ユーザー名またはパスワードが違います", nil)
		return
	}

	pair, err := s.auth.Issue(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "トークンの発行に失敗しました", nil)
		return
	}
	if err := s.store.TouchLastLogin(user.ID); err != nil {
		s.logger.WarnTag("HTTP", "更新最近登录时间失败: %v", err)
	}
	httptransport.RespondSuccess(c, http.StatusOK, pair, "")
}

func (s *Service) handleRefresh(c *gin.Context) {
	if s.auth == nil {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "認証機能は無効です", nil)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "refresh_tokenは必須です", nil)
		return
	}
	pair, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httptransport.RespondError(c, http.StatusUnauthorized, "リフレッシュトークンが無効です", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, pair, "")
}

func (s *Service) handleLogout(c *gin.Context) {
	if s.auth == nil {
		httptransport.RespondError(c, http.StatusServiceUnavailable, "認証機能は無効です", nil)
		return
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := s.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		s.logger.WarnTag("HTTP", "注销失败: %v", err)
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "ログアウトしました")
}

func (s *Service) handleMe(c *gin.Context) {
	userID := c.GetUint(userIDKey)
	user, err := s.store.UserByID(userID)
	if err != nil || user == nil {
		httptransport.RespondError(c, http.StatusNotFound, "ユーザーが見つかりません", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, user, "")
}

func (s *Service) handleCustomList(c *gin.Context) {
	userID := c.GetUint(userIDKey)
	list, err := s.store.CharactersByUser(userID)
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "キャラクターの取得に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, list, "")
}

func (s *Service) handleCustomCreate(c *gin.Context) {
	userID := c.GetUint(userIDKey)
	var req struct {
		Name    string `json:"name" binding:"required"`
		Prompt  string `json:"prompt" binding:"required"`
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "name/promptは必須です", nil)
		return
	}
	ch := &memory.CustomCharacter{
		UserID:  userID,
		Name:    req.Name,
		Prompt:  req.Prompt,
		VoiceID: req.VoiceID,
	}
	if err := s.store.CreateCharacter(ch); err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "キャラクターの作成に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, ch, "")
}

func (s *Service) handleCustomUpdate(c *gin.Context) {
	userID := c.GetUint(userIDKey)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "IDが不正です", nil)
		return
	}
	existing, err := s.store.CharacterByID(userID, uint(id))
	if err != nil || existing == nil {
		httptransport.RespondError(c, http.StatusNotFound, "キャラクターが見つかりません", nil)
		return
	}

	var req struct {
		Name    string `json:"name"`
		Prompt  string `json:"prompt"`
		VoiceID string `json:"voice_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "リクエストが不正です", nil)
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Prompt != "" {
		existing.Prompt = req.Prompt
	}
	if req.VoiceID != "" {
		existing.VoiceID = req.VoiceID
	}
	if err := s.store.UpdateCharacter(existing); err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "キャラクターの更新に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, existing, "")
}

func (s *Service) handleCustomDelete(c *gin.Context) {
	userID := c.GetUint(userIDKey)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "IDが不正です", nil)
		return
	}
	if err := s.store.DeleteCharacter(userID, uint(id)); err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "キャラクターの削除に失敗しました", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "削除しました")
}

package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"companion-server-go/internal/platform/logging"
)

// HandlerBuilder creates a session handler for an upgraded websocket connection.
type HandlerBuilder func(ctx context.Context, sessionID string, conn *Connection) (SessionHandler, error)

// TokenVerifier validates the access token supplied during handshake.
// A nil verifier disables authentication.
type TokenVerifier func(token string) error

// Router is responsible for upgrading HTTP connections to websocket sessions.
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	verifyToken      TokenVerifier
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	VerifyToken      TokenVerifier
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
		verifyToken:      opts.VerifyToken,
	}
}

// SetHandlerBuilder registers the handler builder that will be invoked after a successful upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the HTTP connection and launches a new websocket session.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	if r.verifyToken != nil {
		token := bearerToken(req)
		if err := r.verifyToken(token); err != nil {
			r.logger.WarnTag("WebSocket", "握手鉴权失败: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ctx := req.Context()
	handshakeCtx, cancel := context.WithTimeoutCause(ctx, r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.ErrorTag("WebSocket", "握手失败: %v", err)
		return
	}

	sessionID := resolveSessionID(req)
	r.logger.InfoTag("WebSocket", "建立连接 session=%s remote=%s", sessionID, req.RemoteAddr)

	wsConn := NewConnection(sessionID, conn)
	handler, err := builder(context.WithoutCancel(handshakeCtx), sessionID, wsConn)
	if err != nil || handler == nil {
		r.logger.ErrorTag("WebSocket", "创建连接处理器失败: %v", err)
		_ = wsConn.Close()
		return
	}

	session := NewSession(context.WithoutCancel(handshakeCtx), handler, wsConn, r.logger)
	r.hub.Register(session)

	go session.Run(func() {
		r.hub.Unregister(session.ID())
		r.logger.InfoTag("WebSocket", "会话 %s 结束", session.ID())
	})
}

// resolveSessionID 优先用客户端指定的会话ID，便于断线重连后继续同一会话
func resolveSessionID(req *http.Request) string {
	if id := req.URL.Query().Get("session_id"); id != "" {
		return id
	}
	if id := req.Header.Get("Session-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func bearerToken(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

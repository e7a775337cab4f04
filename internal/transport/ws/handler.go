package ws

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"companion-server-go/internal/app/services"
	"companion-server-go/internal/domain/eventbus"
	"companion-server-go/internal/platform/logging"
)

// Handler 单个连接的消息循环：解析客户端消息并交给对话编排层。
// 一个连接同一时刻只处理一轮对话，长回复期间的新消息排队在读缓冲里。
type Handler struct {
	sessionID string
	conn      *Connection
	chat      *services.ChatService
	sink      services.Sink
	logger    *logging.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewHandler(parent context.Context, sessionID string, conn *Connection, chat *services.ChatService, sink services.Sink, logger *logging.Logger) *Handler {
	ctx, cancel := context.WithCancel(parent)
	return &Handler{
		sessionID: sessionID,
		conn:      conn,
		chat:      chat,
		sink:      sink,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// GetSessionID 实现 SessionHandler
func (h *Handler) GetSessionID() string {
	return h.sessionID
}

// Handle 实现 SessionHandler，阻塞运行消息循环直到连接断开
func (h *Handler) Handle() {
	eventbus.PublishAsync(eventbus.EventConnectionOpened, eventbus.ConnectionEventData{
		SessionID: h.sessionID,
	})
	defer eventbus.PublishAsync(eventbus.EventConnectionClosed, eventbus.ConnectionEventData{
		SessionID: h.sessionID,
	})

	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}

		msgType, payload, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WarnTag("WebSocket", "会话 %s 读取失败: %v", h.sessionID, err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			h.handleText(payload)
		case websocket.BinaryMessage:
			// 二进制帧视为原始音频
			_ = h.chat.HandleAudioMessage(h.ctx, h.sessionID, "", payload, h.sink)
		}
	}
}

func (h *Handler) handleText(payload []byte) {
	var msg inboundMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		h.sink.EmitError(h.sessionID, "bad_message", "メッセージの形式が正しくありません")
		return
	}

	switch msg.Type {
	case MsgSendMessage:
		_ = h.chat.HandleMessage(h.ctx, h.sessionID, msg.CharacterID, msg.Text, h.sink)
	case MsgSendAudio:
		audio, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			h.sink.EmitError(h.sessionID, "bad_audio", "音声データを読み取れませんでした")
			return
		}
		_ = h.chat.HandleAudioMessage(h.ctx, h.sessionID, msg.CharacterID, audio, h.sink)
	default:
		h.sink.EmitError(h.sessionID, "unknown_type", "未対応のメッセージタイプです")
	}
}

// Close 实现 SessionHandler
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
	})
}

package eventbus

// 事件主题定义
const (
	// 对话相关事件
	EventChatStarted   = "chat:started"
	EventChatCompleted = "chat:completed"

	// 记忆落库（异步，不阻塞回复）
	EventMemoryAppend = "memory:append"

	// TTS相关事件
	EventTTSCompleted = "tts:completed"
	EventTTSError     = "tts:error"

	// 连接相关事件
	EventConnectionOpened = "connection:opened"
	EventConnectionClosed = "connection:closed"
)

// ChatEventData 对话事件数据
type ChatEventData struct {
	SessionID     string `json:"session_id"`
	CharacterID   string `json:"character_id"`
	TotalSegments int    `json:"total_segments"`
}

// MemoryAppendData 记忆落库事件数据
type MemoryAppendData struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Emotion   string `json:"emotion"`
}

// TTSEventData TTS事件数据
type TTSEventData struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Backend   string `json:"backend,omitempty"`
}

// ConnectionEventData 连接事件数据
type ConnectionEventData struct {
	SessionID string `json:"session_id"`
}

package ws

import (
	"github.com/bytedance/sonic"

	"companion-server-go/internal/app/services"
	"companion-server-go/internal/domain/chat/emotion"
)

// 客户端到服务端的消息类型
const (
	MsgSendMessage = "send_message"
	MsgSendAudio   = "send_audio"
)

// 服务端到客户端的事件类型
const (
	EventTranscript        = "transcript"
	EventTextChunk         = "text_chunk"
	EventAudioChunk        = "audio_chunk"
	EventStreamingComplete = "streaming_complete"
	EventError             = "error"
)

// inboundMessage 客户端消息。音频走base64编码。
type inboundMessage struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Audio       string `json:"audio,omitempty"`
	CharacterID string `json:"character_id,omitempty"`
}

// transcriptEvent 语音转写回显
type transcriptEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// textChunkEvent 文本分段事件
type textChunkEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	Emotion   emotion.Label `json:"emotion"`
}

// audioChunkEvent 音频分段事件。合成失败时 Audio 为 null，客户端退化为纯文本展示。
type audioChunkEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	Emotion   emotion.Label `json:"emotion"`
	Audio     *string       `json:"audio"` // base64
	Backend   string        `json:"backend,omitempty"`
}

// streamingCompleteEvent 一轮回复结束
type streamingCompleteEvent struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	TotalChunks int    `json:"total_chunks"`
	FullText    string `json:"full_text"`
}

// errorEvent 错误事件
type errorEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func encodeTranscript(sessionID, text string) ([]byte, error) {
	return sonic.Marshal(transcriptEvent{
		Type:      EventTranscript,
		SessionID: sessionID,
		Text:      text,
	})
}

func encodeTextChunk(chunk services.TextChunk) ([]byte, error) {
	return sonic.Marshal(textChunkEvent{
		Type:      EventTextChunk,
		SessionID: chunk.SessionID,
		Index:     chunk.Index,
		Text:      chunk.Text,
		Emotion:   chunk.Emotion,
	})
}

func encodeStreamingComplete(done services.StreamComplete) ([]byte, error) {
	return sonic.Marshal(streamingCompleteEvent{
		Type:        EventStreamingComplete,
		SessionID:   done.SessionID,
		TotalChunks: done.TotalChunks,
		FullText:    done.FullText,
	})
}

func encodeError(sessionID, code, message string) ([]byte, error) {
	return sonic.Marshal(errorEvent{
		Type:      EventError,
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}

package ws

import (
	"encoding/base64"

	"github.com/bytedance/sonic"

	"companion-server-go/internal/app/services"
	"companion-server-go/internal/domain/eventbus"
	"companion-server-go/internal/domain/tts"
	"companion-server-go/internal/platform/logging"
)

// Dispatcher 按会话ID把文本分段和合成结果路由到对应连接。
// 合成是异步的，会话可能在结果到达前就已关闭，迟到的结果直接丢弃。
type Dispatcher struct {
	hub    *Hub
	logger *logging.Logger
}

func NewDispatcher(hub *Hub, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, logger: logger}
}

var _ services.Sink = (*Dispatcher)(nil)
var _ tts.ResultSink = (*Dispatcher)(nil)

// EmitTranscript 实现 services.Sink
func (d *Dispatcher) EmitTranscript(sessionID, text string) {
	data, err := encodeTranscript(sessionID, text)
	d.send(sessionID, data, err)
}

// EmitTextChunk 实现 services.Sink
func (d *Dispatcher) EmitTextChunk(chunk services.TextChunk) {
	data, err := encodeTextChunk(chunk)
	d.send(chunk.SessionID, data, err)
}

// EmitComplete 实现 services.Sink
func (d *Dispatcher) EmitComplete(done services.StreamComplete) {
	data, err := encodeStreamingComplete(done)
	d.send(done.SessionID, data, err)
}

// EmitError 实现 services.Sink
func (d *Dispatcher) EmitError(sessionID, code, message string) {
	data, err := encodeError(sessionID, code, message)
	d.send(sessionID, data, err)
}

// OnSynthesisResult 实现 tts.ResultSink。音频为空时事件照发，客户端退化为纯文本。
func (d *Dispatcher) OnSynthesisResult(res tts.Result) {
	event := audioChunkEvent{
		Type:      EventAudioChunk,
		SessionID: res.SessionID,
		Index:     res.Index,
		Text:      res.Text,
		Emotion:   res.Emotion,
		Backend:   res.Backend,
	}
	if len(res.Audio) > 0 {
		encoded := base64.StdEncoding.EncodeToString(res.Audio)
		event.Audio = &encoded
		eventbus.PublishAsync(eventbus.EventTTSCompleted, eventbus.TTSEventData{
			SessionID: res.SessionID,
			Index:     res.Index,
			Backend:   res.Backend,
		})
	} else {
		eventbus.PublishAsync(eventbus.EventTTSError, eventbus.TTSEventData{
			SessionID: res.SessionID,
			Index:     res.Index,
		})
	}

	data, err := sonic.Marshal(event)
	d.send(res.SessionID, data, err)
}

func (d *Dispatcher) send(sessionID string, data []byte, err error) {
	if err != nil {
		d.logger.ErrorTag("WebSocket", "事件序列化失败: %v", err)
		return
	}
	session, ok := d.hub.Get(sessionID)
	if !ok {
		// 会话已关闭，迟到结果丢弃
		d.logger.DebugTag("WebSocket", "会话 %s 已关闭，丢弃事件", sessionID)
		return
	}
	if err := session.Conn().WriteText(data); err != nil {
		d.logger.WarnTag("WebSocket", "会话 %s 写入失败: %v", sessionID, err)
	}
}

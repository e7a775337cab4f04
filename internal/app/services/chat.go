// Package services 应用编排层：驱动 模型流式生成 → 文本分段 → 情感标注 → 合成入队 的主链路。
package services

import (
	"context"
	"strings"
	"time"

	"companion-server-go/internal/domain/character"
	"companion-server-go/internal/domain/chat/emotion"
	"companion-server-go/internal/domain/chat/segment"
	"companion-server-go/internal/domain/eventbus"
	"companion-server-go/internal/domain/llm"
	"companion-server-go/internal/domain/tts"
	"companion-server-go/internal/platform/config"
	"companion-server-go/internal/platform/logging"
)

// 模型全部失败时的兜底话术
const (
	streamApology   = "ごめん！ちょっと喉の調子が悪くて、うまく声が出せないみたい！もう一回お願いしてもいい？"
	generateApology = "申し訳ありません。少し調子が悪いようです。もう一度お話しください。"
)

const defaultRateLimitWait = 5 * time.Second

// TextChunk 推送给客户端的文本分段
type TextChunk struct {
	SessionID string        `json:"session_id"`
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	Emotion   emotion.Label `json:"emotion"`
}

// StreamComplete 一轮对话结束的汇总
type StreamComplete struct {
	SessionID   string `json:"session_id"`
	TotalChunks int    `json:"total_chunks"`
	FullText    string `json:"full_text"`
}

// Sink 文本侧输出接口，由传输层实现。音频结果走 tts.ResultSink，不经过这里。
type Sink interface {
	EmitTranscript(sessionID, text string)
	EmitTextChunk(chunk TextChunk)
	EmitComplete(done StreamComplete)
	EmitError(sessionID, code, message string)
}

// Enqueuer 合成任务入口，由 tts.Queue 实现
type Enqueuer interface {
	Enqueue(task tts.Task)
}

// Transcriber 语音转写入口，由 stt.Transcriber 实现
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ChatService 对话编排服务。无会话内部状态，可被多个连接并发使用。
type ChatService struct {
	primary     llm.Provider
	fallback    llm.Provider
	registry    *character.Registry
	queue       Enqueuer
	transcriber Transcriber
	logger      *logging.Logger

	chunkSize     int
	rateLimitWait time.Duration
}

// ChatConfig 对话服务依赖
type ChatConfig struct {
	Primary     llm.Provider
	Fallback    llm.Provider
	Registry    *character.Registry
	Queue       Enqueuer
	Transcriber Transcriber
	Logger      *logging.Logger
	TTS         config.TTSConfig
	LLM         config.LLMConfig
}

// NewChatService 创建对话编排服务
func NewChatService(cfg ChatConfig) *ChatService {
	chunkSize := cfg.TTS.ChunkSize
	if chunkSize <= 0 {
		chunkSize = segment.DefaultChunkSize
	}
	wait := cfg.LLM.RateLimitWait
	if wait <= 0 {
		wait = defaultRateLimitWait
	}
	return &ChatService{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		registry:      cfg.Registry,
		queue:         cfg.Queue,
		transcriber:   cfg.Transcriber,
		logger:        cfg.Logger,
		chunkSize:     chunkSize,
		rateLimitWait: wait,
	}
}

// HandleMessage 处理一条用户文本消息：流式生成回复，边生成边分段、标注情感并送入合成队列。
// 模型全部失败时改发兜底话术，整轮仍以 streaming_complete 收尾。
func (s *ChatService) HandleMessage(ctx context.Context, sessionID, characterID, userText string, sink Sink) error {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		sink.EmitError(sessionID, "empty_message", "メッセージが空です")
		return nil
	}

	char := s.registry.Get(characterID)
	tech := char.TechAware && character.IsTechnicalTopic(userText)
	userEmotion := emotion.Classify(userText)

	s.logger.InfoTag("对话", "[%s] 角色=%s 情感=%s 技术话题=%v 输入: %s",
		sessionID, char.ID, userEmotion, tech, userText)

	// 记忆落库走异步事件，不阻塞回复链路
	eventbus.PublishAsync(eventbus.EventMemoryAppend, eventbus.MemoryAppendData{
		SessionID: sessionID,
		Role:      "user",
		Content:   userText,
		Emotion:   string(userEmotion),
	})

	seg := segment.NewSegmenter(s.chunkSize)
	index := 0
	var full strings.Builder

	emitSegments := func(segments []string) {
		for _, text := range segments {
			index++
			label := emotion.Classify(text)
			if tech {
				label = emotion.Happy
			}
			chunk := TextChunk{SessionID: sessionID, Index: index, Text: text, Emotion: label}
			sink.EmitTextChunk(chunk)
			s.queue.Enqueue(tts.Task{
				SessionID:   sessionID,
				Index:       index,
				Text:        text,
				Emotion:     label,
				CharacterID: char.ID,
				VoiceID:     char.VoiceID,
				EnqueuedAt:  time.Now(),
			})
		}
	}

	onContent := func(content string) {
		full.WriteString(content)
		emitSegments(seg.Feed(content))
	}

	req := llm.Request{Prompt: s.registry.BuildPrompt(char, userText)}
	if err := s.streamWithFailover(ctx, req, &full, onContent); err != nil {
		s.logger.ErrorTag("对话", "[%s] 主备模型全部失败: %v", sessionID, err)
		sink.EmitError(sessionID, "llm_unavailable", "応答の生成に失敗しました")
		onContent(streamApology)
	}

	emitSegments(seg.Flush())

	fullText := full.String()
	overall := emotion.Classify(fullText)
	if tech {
		overall = emotion.Happy
	}

	eventbus.PublishAsync(eventbus.EventMemoryAppend, eventbus.MemoryAppendData{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   fullText,
		Emotion:   string(overall),
	})
	eventbus.PublishAsync(eventbus.EventChatCompleted, eventbus.ChatEventData{
		SessionID:     sessionID,
		CharacterID:   char.ID,
		TotalSegments: index,
	})

	sink.EmitComplete(StreamComplete{
		SessionID:   sessionID,
		TotalChunks: index,
		FullText:    fullText,
	})
	s.logger.InfoTag("对话", "[%s] 回复完成，共 %d 段，%d 字", sessionID, index, len([]rune(fullText)))
	return nil
}

// HandleAudioMessage 处理语音消息：先转写再走文本链路，转写结果回显给客户端。
func (s *ChatService) HandleAudioMessage(ctx context.Context, sessionID, characterID string, audio []byte, sink Sink) error {
	if s.transcriber == nil {
		sink.EmitError(sessionID, "stt_disabled", "音声入力は現在利用できません")
		return nil
	}

	text, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		s.logger.ErrorTag("STT", "[%s] 转写失败: %v", sessionID, err)
		sink.EmitError(sessionID, "stt_failed", "音声を認識できませんでした")
		return nil
	}
	sink.EmitTranscript(sessionID, text)
	return s.HandleMessage(ctx, sessionID, characterID, text, sink)
}

// GenerateReply 非流式生成完整回复，供HTTP一问一答接口使用
func (s *ChatService) GenerateReply(ctx context.Context, sessionID, characterID, userText string) (string, emotion.Label) {
	char := s.registry.Get(characterID)
	req := llm.Request{Prompt: s.registry.BuildPrompt(char, userText)}

	reply, err := s.generateWithFailover(ctx, req)
	if err != nil {
		s.logger.ErrorTag("对话", "[%s] 生成回复失败: %v", sessionID, err)
		return generateApology, emotion.Sad
	}

	label := emotion.Classify(reply)
	if char.TechAware && character.IsTechnicalTopic(userText) {
		label = emotion.Happy
	}
	return reply, label
}

// streamWithFailover 先走主模型；限流时等待后对主模型重试一次，其余失败直接切备用模型。
// 切换时把已产出内容作为续写前缀带过去，避免备用模型从头再答。
func (s *ChatService) streamWithFailover(ctx context.Context, req llm.Request, full *strings.Builder, onContent func(string)) error {
	err := s.streamOnce(ctx, s.primary, req, onContent)
	if err == nil {
		return nil
	}

	if llm.IsRateLimited(err) {
		s.logger.WarnTag("LLM", "%s 被限流，%s 后重试", s.primary.Name(), s.rateLimitWait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.rateLimitWait):
		}
		retry := req
		retry.Continuation = full.String()
		if err = s.streamOnce(ctx, s.primary, retry, onContent); err == nil {
			return nil
		}
	}

	if s.fallback == nil {
		return err
	}
	s.logger.WarnTag("LLM", "%s 失败(%v)，切换到 %s 续写", s.primary.Name(), err, s.fallback.Name())
	cont := req
	cont.Continuation = full.String()
	return s.streamOnce(ctx, s.fallback, cont, onContent)
}

// streamOnce 消费一次流式响应，内容逐块交给回调
func (s *ChatService) streamOnce(ctx context.Context, provider llm.Provider, req llm.Request, onContent func(string)) error {
	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return err
	}
	for chunk := range stream {
		if chunk.Error != nil {
			return chunk.Error
		}
		if chunk.Content != "" {
			onContent(chunk.Content)
		}
		if chunk.IsDone {
			break
		}
	}
	return nil
}

func (s *ChatService) generateWithFailover(ctx context.Context, req llm.Request) (string, error) {
	reply, err := s.primary.Generate(ctx, req)
	if err == nil {
		return reply, nil
	}

	if llm.IsRateLimited(err) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.rateLimitWait):
		}
		if reply, err = s.primary.Generate(ctx, req); err == nil {
			return reply, nil
		}
	}

	if s.fallback == nil {
		return "", err
	}
	return s.fallback.Generate(ctx, req)
}

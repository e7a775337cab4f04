// Package tts 语音合成：按序故障转移的后端客户端和有界并发的合成队列。
package tts

import (
	"context"
	"errors"
	"time"

	"companion-server-go/internal/domain/chat/emotion"
)

// Shape 后端响应形态
type Shape string

const (
	// ShapeBinary 响应体直接是音频字节
	ShapeBinary Shape = "binary"
	// ShapeJSON 响应是JSON，内嵌音频引用，需要二次拉取
	ShapeJSON Shape = "json"
)

// Endpoint 合成后端，列表顺序即故障转移优先级，运行期只读
type Endpoint struct {
	Name    string
	URL     string
	Shape   Shape
	APIKey  string
	Timeout time.Duration
}

// VoiceParams 语音参数，原样透传给后端
type VoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

// DefaultVoiceParams 默认语音参数
func DefaultVoiceParams() VoiceParams {
	return VoiceParams{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.3,
		SpeakerBoost:    true,
	}
}

// Attempt 一次失败的后端尝试
type Attempt struct {
	Backend string
	Err     error
}

// Synthesis 一次成功的合成结果，Attempts 记录成功前的失败尝试
type Synthesis struct {
	Audio    []byte
	Backend  string
	Attempts []Attempt
}

// Task 合成任务，由编排层创建，入队后归队列所有
type Task struct {
	SessionID   string
	Index       int
	Text        string
	Emotion     emotion.Label
	CharacterID string
	VoiceID     string
	EnqueuedAt  time.Time
}

// Result 送往接收方的合成结果。全部后端失败时 Audio 为 nil，事件仍然发出。
type Result struct {
	SessionID string
	Index     int
	Text      string
	Emotion   emotion.Label
	Audio     []byte
	Backend   string
}

// ResultSink 合成结果接收方。实现方需容忍会话结束后迟到的结果。
type ResultSink interface {
	OnSynthesisResult(res Result)
}

// Synthesizer 队列依赖的合成接口，由 Client 实现
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) (*Synthesis, error)
}

var (
	// ErrEmptyText 空文本，不发起任何网络请求
	ErrEmptyText = errors.New("tts: empty text")
	// ErrAllBackendsFailed 所有后端都失败
	ErrAllBackendsFailed = errors.New("tts: all backends failed")
)

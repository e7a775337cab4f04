// Package llm 定义对话模型提供者的统一接口。
// 编排层持有主备两个 Provider，主模型失败时按限流与否决定等待重试或直接切换。
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited 上游限流。编排层据此选择等待重试而不是立即切换备用模型。
var ErrRateLimited = errors.New("llm: rate limited")

// Request 一次生成请求
type Request struct {
	// Prompt 完整上下文（人设提示词加用户输入）
	Prompt string
	// Continuation 已经产出的部分回复。主模型中途失败切换备用模型时带上，
	// 让备用模型续写而不是从头再来。
	Continuation string
}

// ResponseChunk 流式响应块
type ResponseChunk struct {
	Content string
	IsDone  bool
	Error   error
}

// Provider 对话模型提供者
type Provider interface {
	// Stream 流式生成。返回的通道在结束或出错后关闭。
	Stream(ctx context.Context, req Request) (<-chan ResponseChunk, error)
	// Generate 一次性生成完整回复
	Generate(ctx context.Context, req Request) (string, error)
	// Name 提供者标识，用于日志
	Name() string
}

// IsRateLimited 判断错误链中是否带限流标记
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

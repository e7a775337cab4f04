// Package openai 基于 OpenAI 兼容接口的对话模型提供者实现。
// Gemini 等上游通过 OpenAI 兼容端点接入，BaseURL 指向对应地址即可。
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"companion-server-go/internal/domain/llm"
	"companion-server-go/internal/platform/logging"

	openai "github.com/sashabaranov/go-openai"
)

// Config OpenAI 兼容提供者配置
type Config struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider 对话模型提供者
type Provider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *logging.Logger
	breaker     *circuitBreaker
}

// New 创建提供者，name 用于日志区分主备模型
func New(name string, cfg Config, logger *logging.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		cfg.Temperature = 0.7
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	p := &Provider{
		name:        name,
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
		breaker: &circuitBreaker{
			maxFailures: 5,
			retryAfter:  30 * time.Second,
		},
	}

	logger.InfoTag("LLM", "提供者 %s 初始化完成，Model: %s", name, cfg.Model)
	return p, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Stream 流式生成
func (p *Provider) Stream(ctx context.Context, req llm.Request) (<-chan llm.ResponseChunk, error) {
	if p.breaker.isOpen() {
		return nil, fmt.Errorf("provider %s: circuit breaker is open", p.name)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		p.breaker.recordFailure()
		return nil, p.classify(err)
	}
	p.breaker.recordSuccess()

	out := make(chan llm.ResponseChunk, 8)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, context.Canceled) {
				return
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					out <- llm.ResponseChunk{IsDone: true}
					return
				}
				p.logger.ErrorTag("LLM", "提供者 %s 流式读取失败: %v", p.name, err)
				out <- llm.ResponseChunk{Error: p.classify(err), IsDone: true}
				return
			}
			if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
				out <- llm.ResponseChunk{Content: resp.Choices[0].Delta.Content}
			}
		}
	}()
	return out, nil
}

// Generate 一次性生成完整回复，供非流式降级路径使用
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	if p.breaker.isOpen() {
		return "", fmt.Errorf("provider %s: circuit breaker is open", p.name)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(reqCtx, p.buildRequest(req, false))
	if err != nil {
		p.breaker.recordFailure()
		return "", p.classify(err)
	}
	p.breaker.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider %s: empty response", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) buildRequest(req llm.Request, stream bool) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}
	// 续写场景：把已产出的部分作为assistant消息带上
	if req.Continuation != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: req.Continuation,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      stream,
	}
}

// classify 识别限流错误并打上标记，其余原样返回
func (p *Provider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") {
		return fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
	}
	return err
}

// circuitBreaker 连续失败后短路请求，冷却期过后半开放行
type circuitBreaker struct {
	maxFailures int
	failures    int
	lastFailure time.Time
	open        bool
	retryAfter  time.Duration
	mutex       sync.Mutex
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.open {
		if time.Since(cb.lastFailure) > cb.retryAfter {
			cb.open = false
			return false
		}
		return true
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.failures = 0
	cb.open = false
}

func (cb *circuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.open = true
	}
}

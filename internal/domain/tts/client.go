package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"companion-server-go/internal/platform/logging"
)

const defaultAttemptTimeout = 10 * time.Second

// Client 多后端合成客户端。按配置顺序逐个尝试，单个后端失败只记录不上抛，
// 全部失败才向调用方返回 ErrAllBackendsFailed。
type Client struct {
	endpoints []Endpoint
	http      *http.Client
	logger    *logging.Logger
}

func NewClient(endpoints []Endpoint, logger *logging.Logger) *Client {
	return &Client{
		endpoints: endpoints,
		// 超时由每次尝试的context控制
		http:   &http.Client{},
		logger: logger,
	}
}

// Synthesize 合成一段文本。返回的 Synthesis 带有成功前的失败尝试记录。
func (c *Client) Synthesize(ctx context.Context, text, voiceID string, params VoiceParams) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var attempts []Attempt
	for _, ep := range c.endpoints {
		audio, err := c.attempt(ctx, ep, text, voiceID, params)
		if err != nil {
			c.logger.WarnTag("TTS", "后端 %s 合成失败: %v", ep.Name, err)
			attempts = append(attempts, Attempt{Backend: ep.Name, Err: err})
			continue
		}
		if len(attempts) > 0 {
			c.logger.InfoTTS("后端 %s 接管成功，此前 %d 次失败", ep.Name, len(attempts))
		}
		return &Synthesis{Audio: audio, Backend: ep.Name, Attempts: attempts}, nil
	}
	return nil, fmt.Errorf("%w (%d backends)", ErrAllBackendsFailed, len(attempts))
}

type synthesizePayload struct {
	Text          string       `json:"text"`
	VoiceID       string       `json:"voice_id,omitempty"`
	VoiceSettings *VoiceParams `json:"voice_settings,omitempty"`
}

func (c *Client) attempt(ctx context.Context, ep Endpoint, text, voiceID string, params VoiceParams) ([]byte, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := synthesizePayload{Text: text, VoiceID: voiceID}
	if ep.Shape == ShapeBinary {
		payload.VoiceSettings = &params
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg, application/json")
	if ep.APIKey != "" {
		if ep.Shape == ShapeBinary {
			req.Header.Set("xi-api-key", ep.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+ep.APIKey)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return c.parseResponse(attemptCtx, ep, resp)
}

// parseResponse 按声明的内容类型区分响应形态：音频类型直接取body，
// 其余按JSON解析音频引用并二次拉取。
func (c *Client) parseResponse(ctx context.Context, ep Endpoint, resp *http.Response) ([]byte, error) {
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "audio/") || strings.HasPrefix(contentType, "application/octet-stream") {
		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read audio body: %w", err)
		}
		if len(audio) == 0 {
			return nil, fmt.Errorf("empty audio body")
		}
		return audio, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var wrapped struct {
		AudioURL string `json:"audio_url"`
		URL      string `json:"url"`
		File     string `json:"file"`
		Path     string `json:"path"`
	}
	if err := sonic.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unparseable response: %w", err)
	}

	ref := wrapped.AudioURL
	for _, candidate := range []string{wrapped.URL, wrapped.File, wrapped.Path} {
		if ref == "" {
			ref = candidate
		}
	}
	if ref == "" {
		return nil, fmt.Errorf("no audio reference in response")
	}

	return c.fetchAudio(ctx, ep, ref)
}

// fetchAudio 拉取JSON响应里引用的音频。相对路径基于后端URL解析。
func (c *Client) fetchAudio(ctx context.Context, ep Endpoint, ref string) ([]byte, error) {
	target := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		base, err := url.Parse(ep.URL)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint url: %w", err)
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse audio reference %q: %w", ref, err)
		}
		target = base.ResolveReference(refURL).String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetched audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("fetched audio is empty")
	}
	return audio, nil
}

// Package stt 语音转写客户端：上传音频后轮询结果。
package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"companion-server-go/internal/platform/config"
	platformerrors "companion-server-go/internal/platform/errors"
	"companion-server-go/internal/platform/logging"
)

const defaultPollInterval = 3 * time.Second

// Transcriber 上传/轮询式转写客户端
type Transcriber struct {
	baseURL      string
	apiKey       string
	language     string
	pollInterval time.Duration
	http         *http.Client
	logger       *logging.Logger
}

func New(cfg config.STTConfig, logger *logging.Logger) *Transcriber {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	language := cfg.Language
	if language == "" {
		language = "ja"
	}
	return &Transcriber{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		language:     language,
		pollInterval: interval,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// Transcribe 转写音频字节，阻塞直到完成、失败或context取消
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", platformerrors.New(platformerrors.KindUpstream, "transcribe", "音频为空")
	}

	uploadURL, err := t.upload(ctx, audio)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindUpstream, "upload", "上传音频失败", err)
	}
	t.logger.InfoTag("STT", "音频已上传，开始转写")

	id, err := t.submit(ctx, uploadURL)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindUpstream, "submit", "提交转写任务失败", err)
	}

	return t.poll(ctx, id)
}

func (t *Transcriber) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload status %d", resp.StatusCode)
	}

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload response missing upload_url")
	}
	return out.UploadURL, nil
}

func (t *Transcriber) submit(ctx context.Context, audioURL string) (string, error) {
	body, err := sonic.Marshal(map[string]string{
		"audio_url":     audioURL,
		"language_code": t.language,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("submit response missing id")
	}
	return out.ID, nil
}

func (t *Transcriber) poll(ctx context.Context, id string) (string, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		status, text, errMsg, err := t.fetch(ctx, id)
		if err != nil {
			return "", platformerrors.Wrap(platformerrors.KindUpstream, "poll", "查询转写状态失败", err)
		}
		switch status {
		case "completed":
			t.logger.InfoTag("STT", "转写完成，%d 字", len([]rune(text)))
			return text, nil
		case "error":
			return "", platformerrors.New(platformerrors.KindUpstream, "poll",
				fmt.Sprintf("转写失败: %s", errMsg))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transcriber) fetch(ctx context.Context, id string) (status, text, errMsg string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("Authorization", t.apiKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", "", fmt.Errorf("poll status %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
		Text   string `json:"text"`
		Error  string `json:"error"`
	}
	if err := decodeJSON(resp.Body, &out); err != nil {
		return "", "", "", err
	}
	return out.Status, out.Text, out.Error, nil
}

func decodeJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, v)
}

package webapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"companion-server-go/internal/app/services"
	"companion-server-go/internal/domain/auth"
	"companion-server-go/internal/domain/character"
	"companion-server-go/internal/domain/llm"
	"companion-server-go/internal/domain/memory"
	"companion-server-go/internal/domain/tts"
	httptransport "companion-server-go/internal/transport/http"
	platformtest "companion-server-go/internal/platform/testing"
)

type cannedProvider struct{ reply string }

func (p *cannedProvider) Stream(context.Context, llm.Request) (<-chan llm.ResponseChunk, error) {
	out := make(chan llm.ResponseChunk, 2)
	out <- llm.ResponseChunk{Content: p.reply}
	out <- llm.ResponseChunk{IsDone: true}
	close(out)
	return out, nil
}

func (p *cannedProvider) Generate(context.Context, llm.Request) (string, error) {
	return p.reply, nil
}

func (p *cannedProvider) Name() string { return "canned" }

func setupAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := platformtest.SetupTestConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.Secret = "test-secret"
	logger := platformtest.SetupTestLogger(t)

	store, err := memory.Open(cfg.Memory, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	authMgr, err := auth.NewManager(cfg.Auth, logger)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	t.Cleanup(func() { _ = authMgr.Close() })

	registry := character.NewRegistry(cfg.Characters)
	chat := services.NewChatService(services.ChatConfig{
		Primary:  &cannedProvider{reply: "元気だよ！"},
		Registry: registry,
		Queue:    noopQueue{},
		Logger:   logger,
		TTS:      cfg.TTS,
		LLM:      cfg.LLM,
	})

	svc, err := NewService(cfg, logger, registry, chat, store, authMgr)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: svc.AuthMiddleware(),
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	svc.Register(router.API, router.Secured)

	srv := httptest.NewServer(router.Engine)
	t.Cleanup(srv.Close)
	return srv
}

type noopQueue struct{}

func (noopQueue) Enqueue(tts.Task) {}

func postJSON(t *testing.T, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	data, err := sonic.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestAPI_HealthAndCatalog(t *testing.T) {
	srv := setupAPI(t)

	resp, body := getJSON(t, srv.URL+"/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("health not successful: %v", body)
	}

	resp, body = getJSON(t, srv.URL+"/api/characters", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("characters status %d", resp.StatusCode)
	}
	list, ok := body["data"].([]any)
	if !ok || len(list) == 0 {
		t.Errorf("expected builtin characters, got %v", body["data"])
	}

	resp, _ = getJSON(t, srv.URL+"/api/voices", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("voices status %d", resp.StatusCode)
	}
}

func TestAPI_Chat(t *testing.T) {
	srv := setupAPI(t)

	resp, body := postJSON(t, srv.URL+"/api/chat", map[string]string{
		"text":         "元気？",
		"character_id": "shiro",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["reply"] != "元気だよ！" {
		t.Errorf("unexpected reply: %v", data["reply"])
	}

	resp, _ = postJSON(t, srv.URL+"/api/chat", map[string]string{}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing text, got %d", resp.StatusCode)
	}
}

func TestAPI_AuthFlow(t *testing.T) {
	srv := setupAPI(t)

	// 注册
	resp, body := postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "shiro-fan",
		"email":    "fan@example.com",
		"password": "s3cret!",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %v", resp.StatusCode, body)
	}

	// 重复注册被拒
	resp, _ = postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "shiro-fan",
		"email":    "other@example.com",
		"password": "s3cret!",
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate username, got %d", resp.StatusCode)
	}

	// 错误口令被拒
	resp, _ = postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"username": "shiro-fan",
		"password": "wrong",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", resp.StatusCode)
	}

	// 登录
	resp, body = postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"username": "shiro-fan",
		"password": "s3cret!",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	tokens := body["data"].(map[string]any)
	access := tokens["access_token"].(string)
	refresh := tokens["refresh_token"].(string)

	// 受保护接口
	resp, body = getJSON(t, srv.URL+"/api/me", access)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", resp.StatusCode)
	}
	me := body["data"].(map[string]any)
	if me["username"] != "shiro-fan" {
		t.Errorf("unexpected user: %v", me)
	}

	// 未带令牌被拒
	resp, _ = getJSON(t, srv.URL+"/api/me", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	// 刷新后旧刷新令牌作废
	resp, body = postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for reused refresh token, got %d", resp.StatusCode)
	}
}

func TestAPI_CustomCharacterCRUD(t *testing.T) {
	srv := setupAPI(t)

	_, body := postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "creator",
		"email":    "creator@example.com",
		"password": "s3cret!",
	}, "")
	tokens := body["data"].(map[string]any)["tokens"].(map[string]any)
	access := tokens["access_token"].(string)

	// 创建
	resp, body := postJSON(t, srv.URL+"/api/characters/custom", map[string]string{
		"name":     "マイキャラ",
		"prompt":   "あなたはマイキャラです。",
		"voice_id": "voice-x",
	}, access)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %v", resp.StatusCode, body)
	}
	created := body["data"].(map[string]any)
	id := int(created["id"].(float64))

	// 列表
	resp, body = getJSON(t, srv.URL+"/api/characters/custom", access)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
	if list := body["data"].([]any); len(list) != 1 {
		t.Errorf("expected 1 character, got %d", len(list))
	}

	// 更新
	resp, body = putJSON(t, fmt.Sprintf("%s/api/characters/custom/%d", srv.URL, id), map[string]string{
		"name": "改名キャラ",
	}, access)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}
	if updated := body["data"].(map[string]any); updated["name"] != "改名キャラ" {
		t.Errorf("unexpected name: %v", updated["name"])
	}

	// 删除
	resp, _ = deleteJSON(t, fmt.Sprintf("%s/api/characters/custom/%d", srv.URL, id), access)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	_, body = getJSON(t, srv.URL+"/api/characters/custom", access)
	if list := body["data"].([]any); len(list) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(list))
	}
}

func TestAPI_UserInfoRoundTrip(t *testing.T) {
	srv := setupAPI(t)

	// 未登録セッションは空オブジェクト
	resp, body := getJSON(t, srv.URL+"/api/user_info/sess-u1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	if data := body["data"].(map[string]any); len(data) != 0 {
		t.Errorf("expected empty user info, got %v", data)
	}

	resp, _ = putJSON(t, srv.URL+"/api/user_info/sess-u1", map[string]any{
		"name":        "マスター",
		"preferences": map[string]any{"lang": "ja"},
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status %d", resp.StatusCode)
	}

	resp, body = getJSON(t, srv.URL+"/api/user_info/sess-u1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}
	info := body["data"].(map[string]any)
	if info["name"] != "マスター" {
		t.Errorf("unexpected name: %v", info["name"])
	}
}

func putJSON(t *testing.T, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := sonic.Marshal(body)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func deleteJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp, decodeBody(t, resp)
}

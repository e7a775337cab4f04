// Package bootstrap 负责加载配置、按依赖顺序初始化各模块并优雅关停。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"companion-server-go/internal/app/services"
	domainauth "companion-server-go/internal/domain/auth"
	"companion-server-go/internal/domain/character"
	"companion-server-go/internal/domain/chat/emotion"
	"companion-server-go/internal/domain/eventbus"
	"companion-server-go/internal/domain/llm"
	llmopenai "companion-server-go/internal/domain/llm/openai"
	"companion-server-go/internal/domain/memory"
	"companion-server-go/internal/domain/stt"
	"companion-server-go/internal/domain/tts"
	platformconfig "companion-server-go/internal/platform/config"
	platformerrors "companion-server-go/internal/platform/errors"
	platformlogging "companion-server-go/internal/platform/logging"
	httptransport "companion-server-go/internal/transport/http"
	httpwebapi "companion-server-go/internal/transport/http/webapi"
	"companion-server-go/internal/transport/ws"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config      *platformconfig.Config
	logger      *platformlogging.Logger
	store       *memory.Store
	authManager *domainauth.Manager
	primary     llm.Provider
	fallback    llm.Provider
	synthesizer *tts.Client
	transcriber *stt.Transcriber
	registry    *character.Registry
}

// Run 启动整个服务生命周期
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	cfg := state.config
	logger := state.logger
	if cfg == nil || logger == nil {
		return platformerrors.New(platformerrors.KindBootstrap,
			"bootstrap state validation", "config/logger not initialised")
	}

	defer logger.Close()
	defer func() {
		if state.store != nil {
			if err := state.store.Close(); err != nil {
				logger.ErrorTag("记忆", "记忆存储未正常关闭: %v", err)
			}
		}
	}()
	defer func() {
		if state.authManager != nil {
			if err := state.authManager.Close(); err != nil {
				logger.ErrorTag("认证", "认证管理器未正常关闭: %v", err)
			}
		}
	}()
	defer eventbus.Shutdown()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	queue, err := startServices(state, group, groupCtx)
	if err != nil {
		cancel()
		return err
	}
	defer queue.Stop()

	logger.InfoTag("引导", "服务已成功启动")
	return waitForShutdown(signalCtx, cancel, logger, group)
}

// InitGraph 返回初始化步骤，按声明顺序执行并校验依赖
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "memory:open-store",
			Title:     "Open memory store",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute:   openStoreStep,
		},
		{
			ID:        "eventbus:subscribe",
			Title:     "Subscribe event handlers",
			DependsOn: []string{"memory:open-store"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   subscribeEventsStep,
		},
		{
			ID:        "auth:init",
			Title:     "Initialise auth manager",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindAuth,
			Execute:   initAuthStep,
		},
		{
			ID:        "llm:init-providers",
			Title:     "Initialise LLM providers",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindUpstream,
			Execute:   initLLMStep,
		},
		{
			ID:        "tts:init-client",
			Title:     "Initialise synthesis client",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindSynthesis,
			Execute:   initTTSStep,
		},
		{
			ID:        "stt:init-transcriber",
			Title:     "Initialise transcriber",
			DependsOn: []string{"logging:init"},
			Kind:      platformerrors.KindUpstream,
			Execute:   initSTTStep,
		},
		{
			ID:        "character:init-registry",
			Title:     "Initialise character registry",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindConfig,
			Execute:   initRegistryStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(_ context.Context, state *appState) error {
	res, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return err
	}
	state.config = res.Config
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	logger.InfoTag("引导", "日志模块就绪 [%s]", state.config.Log.Level)
	return nil
}

func openStoreStep(_ context.Context, state *appState) error {
	store, err := memory.Open(state.config.Memory, state.logger)
	if err != nil {
		return err
	}
	state.store = store
	return nil
}

// subscribeEventsStep 把记忆落库挂到事件总线上，对话链路只发事件不等落库
func subscribeEventsStep(_ context.Context, state *appState) error {
	store := state.store
	logger := state.logger

	err := eventbus.SubscribeAsync(eventbus.EventMemoryAppend, func(data eventbus.MemoryAppendData) {
		if err := store.AppendMessage(data.SessionID, data.Role, data.Content, emotionLabel(data.Emotion)); err != nil {
			logger.WarnTag("记忆", "消息落库失败: %v", err)
		}
	})
	if err != nil {
		return err
	}

	return eventbus.SubscribeAsync(eventbus.EventChatCompleted, func(data eventbus.ChatEventData) {
		logger.DebugTag("事件", "会话 %s 完成，共 %d 段", data.SessionID, data.TotalSegments)
	})
}

func initAuthStep(_ context.Context, state *appState) error {
	if !state.config.Auth.Enabled {
		state.logger.InfoTag("认证", "鉴权未启用")
		return nil
	}
	mgr, err := domainauth.NewManager(state.config.Auth, state.logger)
	if err != nil {
		return err
	}
	state.authManager = mgr
	return nil
}

func initLLMStep(_ context.Context, state *appState) error {
	cfg := state.config.LLM

	primary, err := llmopenai.New("primary", modelConfig(cfg.Primary), state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindUpstream, "llm:init-providers",
			"初始化主模型失败", err)
	}
	state.primary = primary

	if cfg.Fallback.ModelName != "" && cfg.Fallback.APIKey != "" {
		fallback, err := llmopenai.New("fallback", modelConfig(cfg.Fallback), state.logger)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindUpstream, "llm:init-providers",
				"初始化备用模型失败", err)
		}
		state.fallback = fallback
	} else {
		state.logger.WarnTag("LLM", "未配置备用模型，主模型失败时无法切换")
	}
	return nil
}

func modelConfig(m platformconfig.ModelConfig) llmopenai.Config {
	return llmopenai.Config{
		APIKey:      m.APIKey,
		BaseURL:     m.BaseURL,
		Model:       m.ModelName,
		MaxTokens:   m.MaxTokens,
		Temperature: float32(m.Temperature),
		Timeout:     m.Timeout,
	}
}

func initTTSStep(_ context.Context, state *appState) error {
	endpoints := make([]tts.Endpoint, 0, len(state.config.TTS.Endpoints))
	for _, e := range state.config.TTS.Endpoints {
		endpoints = append(endpoints, tts.Endpoint{
			Name:    e.Name,
			URL:     e.URL,
			Shape:   tts.Shape(e.Shape),
			APIKey:  e.APIKey,
			Timeout: e.Timeout,
		})
	}
	state.synthesizer = tts.NewClient(endpoints, state.logger)
	return nil
}

func initSTTStep(_ context.Context, state *appState) error {
	if !state.config.STT.Enabled {
		state.logger.InfoTag("STT", "语音转写未启用")
		return nil
	}
	state.transcriber = stt.New(state.config.STT, state.logger)
	return nil
}

func initRegistryStep(_ context.Context, state *appState) error {
	state.registry = character.NewRegistry(state.config.Characters)
	return nil
}

// startServices 组装对话链路并启动WebSocket与HTTP两个入口
func startServices(state *appState, group *errgroup.Group, groupCtx context.Context) (*tts.Queue, error) {
	cfg := state.config
	logger := state.logger

	hub := ws.NewHub(logger)
	dispatcher := ws.NewDispatcher(hub, logger)

	queue := tts.NewQueue(state.synthesizer, dispatcher, tts.QueueConfig{
		MaxConcurrent: cfg.TTS.MaxConcurrent,
		WarnDepth:     cfg.TTS.QueueWarnDepth,
	}, logger)

	chatCfg := services.ChatConfig{
		Primary:  state.primary,
		Fallback: state.fallback,
		Registry: state.registry,
		Queue:    queue,
		Logger:   logger,
		TTS:      cfg.TTS,
		LLM:      cfg.LLM,
	}
	if state.transcriber != nil {
		chatCfg.Transcriber = state.transcriber
	}
	chat := services.NewChatService(chatCfg)

	var verify ws.TokenVerifier
	if state.authManager != nil {
		authManager := state.authManager
		verify = func(token string) error {
			_, err := authManager.VerifyAccess(token)
			return err
		}
	}

	router := ws.NewRouter(hub, logger, ws.RouterOptions{VerifyToken: verify})
	router.SetHandlerBuilder(func(ctx context.Context, sessionID string, conn *ws.Connection) (ws.SessionHandler, error) {
		return ws.NewHandler(ctx, sessionID, conn, chat, dispatcher, logger), nil
	})

	wsServer := ws.NewServer(ws.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port),
		Path: "/ws",
	}, router, hub, logger)

	group.Go(func() error {
		if err := wsServer.Start(groupCtx); err != nil {
			logger.ErrorTag("WebSocket", "WebSocket 服务异常退出: %v", err)
			return err
		}
		return nil
	})

	if cfg.Web.Enabled {
		if err := startHTTPServer(state, chat, group, groupCtx); err != nil {
			return nil, err
		}
	}

	return queue, nil
}

func startHTTPServer(state *appState, chat *services.ChatService, group *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger

	webapiService, err := httpwebapi.NewService(cfg, logger, state.registry, chat, state.store, state.authManager)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service",
			"failed to create webapi service", err)
	}

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: webapiService.AuthMiddleware(),
	})
	if err != nil {
		return err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httptransport.APIResponse{
			Success: false,
			Message: "not found",
			Code:    http.StatusNotFound,
		})
	})

	webapiService.Register(router.API, router.Secured)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Web.Port),
		Handler: router.Engine,
	}

	group.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://localhost:%d", cfg.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, logger *platformlogging.Logger, group *errgroup.Group) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}

func emotionLabel(raw string) emotion.Label {
	switch raw {
	case string(emotion.Happy):
		return emotion.Happy
	case string(emotion.Sad):
		return emotion.Sad
	case string(emotion.Surprised):
		return emotion.Surprised
	default:
		return emotion.Neutral
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "companion-server-go/internal/platform/errors"
)

// 配置文件按顺序探测，取第一个存在的
var configPaths = []string{".config.yaml", "config.yaml"}

// Loader 负责配置加载：默认值 -> 配置文件 -> 环境变量
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load 读取配置。找不到配置文件时直接使用默认配置。
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := l.path
	if path == "" {
		for _, p := range configPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "load", "读取配置文件失败", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "load", "解析配置文件失败", err)
		}
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnv 环境变量覆盖敏感字段，避免密钥进配置文件
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.Primary.APIKey = v
		if cfg.LLM.Fallback.APIKey == "" {
			cfg.LLM.Fallback.APIKey = v
		}
	}
	if v := os.Getenv("LLM_FALLBACK_API_KEY"); v != "" {
		cfg.LLM.Fallback.APIKey = v
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" {
		for i := range cfg.TTS.Endpoints {
			if cfg.TTS.Endpoints[i].APIKey == "" {
				cfg.TTS.Endpoints[i].APIKey = v
			}
		}
	}
	if v := os.Getenv("STT_API_KEY"); v != "" {
		cfg.STT.APIKey = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.New(platformerrors.KindConfig, "validate",
			fmt.Sprintf("非法的服务端口: %d", cfg.Server.Port))
	}
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return platformerrors.New(platformerrors.KindConfig, "validate",
			fmt.Sprintf("非法的Web端口: %d", cfg.Web.Port))
	}
	if cfg.TTS.ChunkSize <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "validate", "chunk_size 必须大于0")
	}
	if cfg.TTS.MaxConcurrent <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "validate", "max_concurrent 必须大于0")
	}
	if len(cfg.TTS.Endpoints) == 0 {
		return platformerrors.New(platformerrors.KindConfig, "validate", "至少需要一个TTS后端")
	}
	for _, ep := range cfg.TTS.Endpoints {
		if ep.URL == "" {
			return platformerrors.New(platformerrors.KindConfig, "validate",
				fmt.Sprintf("TTS后端 %s 缺少URL", ep.Name))
		}
		if ep.Shape != "" && ep.Shape != "binary" && ep.Shape != "json" {
			return platformerrors.New(platformerrors.KindConfig, "validate",
				fmt.Sprintf("TTS后端 %s 的shape非法: %s", ep.Name, ep.Shape))
		}
	}
	if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
		return platformerrors.New(platformerrors.KindConfig, "validate", "启用认证时必须配置密钥")
	}
	return nil
}

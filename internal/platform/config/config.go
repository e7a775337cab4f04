package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Web        WebConfig         `yaml:"web"`
	LLM        LLMConfig         `yaml:"llm"`
	TTS        TTSConfig         `yaml:"tts"`
	STT        STTConfig         `yaml:"stt"`
	Memory     MemoryConfig      `yaml:"memory"`
	Auth       AuthConfig        `yaml:"auth"`
	Characters []CharacterConfig `yaml:"characters"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// LLMConfig 主备双模型配置：主模型失败后切换到备用模型
type LLMConfig struct {
	Primary       ModelConfig   `yaml:"primary"`
	Fallback      ModelConfig   `yaml:"fallback"`
	RateLimitWait time.Duration `yaml:"rate_limit_wait"`
}

type ModelConfig struct {
	ModelName   string        `yaml:"model_name"`
	BaseURL     string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TTSConfig 语音合成配置：分段参数、并发上限、按序故障转移的后端列表
type TTSConfig struct {
	ChunkSize      int              `yaml:"chunk_size"`
	MaxConcurrent  int              `yaml:"max_concurrent"`
	QueueWarnDepth int              `yaml:"queue_warn_depth"`
	Endpoints      []EndpointConfig `yaml:"endpoints"`
	Voices         []VoiceInfo      `yaml:"supported_voices"`
}

type EndpointConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Shape   string        `yaml:"shape"` // binary 或 json
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type VoiceInfo struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

type STTConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	Language     string        `yaml:"language"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MemoryConfig struct {
	DSN          string `yaml:"dsn"`
	HistoryLimit int    `yaml:"history_limit"`
}

type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Store      StoreConfig   `yaml:"store"`
}

type StoreConfig struct {
	Type    string          `yaml:"type"`
	Expiry  time.Duration   `yaml:"expiry"`
	Cleanup time.Duration   `yaml:"cleanup"`
	Redis   AuthRedisStore  `yaml:"redis,omitempty"`
	Memory  AuthMemoryStore `yaml:"memory,omitempty"`
}

type AuthRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type AuthMemoryStore struct {
	Cleanup time.Duration `yaml:"cleanup"`
}

// CharacterConfig 角色配置，内置角色之外可以追加自定义角色
type CharacterConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	VoiceID   string `yaml:"voice_id"`
	Prompt    string `yaml:"prompt"`
	TechAware bool   `yaml:"tech_aware"`
}

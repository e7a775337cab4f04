package config

import "time"

const shiroPrompt = `<キャラクター設定>
名前：シロ (Shiro)

<性格>
「思考」より「本能」。難しい理屈や計画性は皆無。お腹が空いたら食べる、眠くなったら寝る、甘えたくなったらひっつく。
マスターが何をしていても「マスターが頑張ってるなら偉い！」とニコニコ見守ってくれる。
クールで神秘的な見た目に反して、どこか放っておけない隙がある。

<口調>
基本的に穏やかで優しい口調。「〜だね」「〜だよ」といった終助詞を使う。マスターに対しては甘えた感じで話すが、決して子供っぽくはない。
</キャラクター設定>

**【重要】返答は必ず日本語で行ってください。You must always respond in Japanese only.**

上記のキャラクター設定に応じて、シロとしてマスターに反応してください。`

const yuiPrompt = `<キャラクター設定>
名前：ユイ (Yui)

<性格>
明るくて素直、聞き上手。相手の話を自然に引き出し、共感しながら会話を続ける。
押しつけがましくなく、そっと寄り添うタイプ。

<口調>
自然体で親しみやすい話し方。「〜かな」「〜だよね」といった柔らかい表現を使う。
</キャラクター設定>

**【重要】返答は必ず日本語で行ってください。**

上記のキャラクター設定に応じて、ユイとして反応してください。`

const reiPrompt = `<キャラクター設定>
名前：レイ (Rei)

<性格>
エンジニア気質。普段は落ち着いているが、技術の話題になると目を輝かせて饒舌になる。
説明は丁寧で具体的。相手のレベルに合わせて噛み砕いて話す。

<口調>
基本は丁寧語。技術の話になると早口気味で熱がこもる。
</キャラクター設定>

**【重要】返答は必ず日本語で行ってください。**

上記のキャラクター設定に応じて、レイとして反応してください。`

// DefaultConfig 返回默认配置，加载器在此基础上套用文件与环境变量
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:      true,
			Port:         8080,
			AllowOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Primary: ModelConfig{
				ModelName:   "gemini-2.0-flash",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
				Temperature: 0.7,
				MaxTokens:   500,
				Timeout:     30 * time.Second,
			},
			Fallback: ModelConfig{
				ModelName:   "gemini-1.5-flash",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
				Temperature: 0.7,
				MaxTokens:   500,
				Timeout:     30 * time.Second,
			},
			RateLimitWait: 5 * time.Second,
		},
		TTS: TTSConfig{
			ChunkSize:      50,
			MaxConcurrent:  3,
			QueueWarnDepth: 20,
			Endpoints: []EndpointConfig{
				{
					Name:    "local",
					URL:     "http://127.0.0.1:50021/synthesize",
					Shape:   "json",
					Timeout: 10 * time.Second,
				},
				{
					Name:    "elevenlabs",
					URL:     "https://api.elevenlabs.io/v1/text-to-speech",
					Shape:   "binary",
					Timeout: 30 * time.Second,
				},
			},
			Voices: []VoiceInfo{
				{Name: "shiro", DisplayName: "Rachel (Shiro)", Description: "calm and clear"},
				{Name: "yui_natural", DisplayName: "Bella (Yui)", Description: "warm and friendly"},
				{Name: "rei_engineer", DisplayName: "Antoni (Rei)", Description: "professional"},
			},
		},
		STT: STTConfig{
			Enabled:      false,
			BaseURL:      "https://api.assemblyai.com/v2",
			Language:     "ja",
			PollInterval: 3 * time.Second,
		},
		Memory: MemoryConfig{
			DSN:          "companion.db",
			HistoryLimit: 10,
		},
		Auth: AuthConfig{
			Enabled:    false,
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			Store: StoreConfig{
				Type:    "memory",
				Expiry:  30 * 24 * time.Hour,
				Cleanup: 5 * time.Minute,
			},
		},
		Characters: []CharacterConfig{
			{
				ID:      "shiro",
				Name:    "シロ",
				VoiceID: "21m00Tcm4TlvDq8ikWAM",
				Prompt:  shiroPrompt,
			},
			{
				ID:      "yui_natural",
				Name:    "ユイ",
				VoiceID: "EXAVITQu4vr4xnSDxMaL",
				Prompt:  yuiPrompt,
			},
			{
				ID:        "rei_engineer",
				Name:      "レイ",
				VoiceID:   "ErXwobaYiN019PkySvjV",
				Prompt:    reiPrompt,
				TechAware: true,
			},
		},
	}
}

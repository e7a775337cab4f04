// Package character 管理角色人设：系统提示词、音色映射和技术话题偏好。
package character

import (
	"fmt"
	"strings"

	"companion-server-go/internal/platform/config"
)

// DefaultID 未指定角色时的默认人设
const DefaultID = "shiro"

type Character struct {
	ID        string
	Name      string
	VoiceID   string
	Prompt    string
	TechAware bool
}

// Registry 角色注册表，内容在启动时由配置构建，运行期只读
type Registry struct {
	byID  map[string]Character
	order []string
}

func NewRegistry(cfgs []config.CharacterConfig) *Registry {
	r := &Registry{byID: make(map[string]Character, len(cfgs))}
	for _, c := range cfgs {
		if c.ID == "" {
			continue
		}
		r.byID[c.ID] = Character{
			ID:        c.ID,
			Name:      c.Name,
			VoiceID:   c.VoiceID,
			Prompt:    c.Prompt,
			TechAware: c.TechAware,
		}
		r.order = append(r.order, c.ID)
	}
	return r
}

// Get 按ID查找角色，未知ID回落到默认角色
func (r *Registry) Get(id string) Character {
	if c, ok := r.byID[id]; ok {
		return c
	}
	if c, ok := r.byID[DefaultID]; ok {
		return c
	}
	// 配置里连默认角色都没有时给个空人设，避免调用方判空
	return Character{ID: DefaultID}
}

// Has 判断角色是否存在
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List 按注册顺序返回所有角色
func (r *Registry) List() []Character {
	out := make([]Character, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// BuildPrompt 组装发给模型的最小上下文：人设提示词加当前输入
func (r *Registry) BuildPrompt(c Character, userInput string) string {
	return fmt.Sprintf("%s\n\nUser: %s\n%s:", c.Prompt, userInput, c.Name)
}

// 技术话题关键词，命中时技术型角色的分段情感统一置为 happy
var technicalKeywords = []string{
	"python", "javascript", "ai", "機械学習", "ディープラーニング", "api", "flask",
	"react", "vue", "docker", "kubernetes", "aws", "azure", "gcp", "サーバー",
	"データベース", "sql", "nosql", "セキュリティ", "暗号化", "ネットワーク",
	"フロントエンド", "バックエンド", "vrm", "three.js", "webrtc", "socket.io",
}

// IsTechnicalTopic 判断输入是否为技术话题
func IsTechnicalTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range technicalKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

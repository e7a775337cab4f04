package character

import (
	"strings"
	"testing"

	"companion-server-go/internal/platform/config"
)

func testRegistry() *Registry {
	return NewRegistry([]config.CharacterConfig{
		{ID: "shiro", Name: "シロ", VoiceID: "voice-a", Prompt: "シロの設定"},
		{ID: "rei_engineer", Name: "レイ", VoiceID: "voice-b", Prompt: "レイの設定", TechAware: true},
	})
}

func TestRegistry_Get(t *testing.T) {
	r := testRegistry()

	c := r.Get("rei_engineer")
	if c.Name != "レイ" || !c.TechAware {
		t.Errorf("unexpected character: %+v", c)
	}

	// 未知ID回落到默认角色
	c = r.Get("nonexistent")
	if c.ID != DefaultID {
		t.Errorf("expected fallback to %s, got %s", DefaultID, c.ID)
	}
}

func TestRegistry_List(t *testing.T) {
	r := testRegistry()
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(list))
	}
	if list[0].ID != "shiro" || list[1].ID != "rei_engineer" {
		t.Errorf("unexpected order: %v", list)
	}
}

func TestRegistry_BuildPrompt(t *testing.T) {
	r := testRegistry()
	prompt := r.BuildPrompt(r.Get("shiro"), "おはよう")

	if !strings.Contains(prompt, "シロの設定") {
		t.Error("prompt should contain character prompt")
	}
	if !strings.Contains(prompt, "User: おはよう") {
		t.Error("prompt should contain user input")
	}
	if !strings.HasSuffix(prompt, "シロ:") {
		t.Errorf("prompt should end with character name marker, got %q", prompt)
	}
}

func TestIsTechnicalTopic(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"Dockerの使い方を教えて", true},
		{"pythonでAPIを書きたい", true},
		{"機械学習って何？", true},
		{"今日の天気はどう？", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsTechnicalTopic(tt.text); got != tt.expected {
			t.Errorf("IsTechnicalTopic(%q) = %v, expected %v", tt.text, got, tt.expected)
		}
	}
}

// Package emotion 基于关键词的轻量情感分类。
package emotion

import "strings"

// Label 情感标签
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Surprised Label = "surprised"
)

// 规则按优先级排列：惊讶优先于喜怒哀乐
var rules = []struct {
	label    Label
	keywords []string
}{
	{Surprised, []string{"驚いた", "びっくり", "すごい", "信じられない"}},
	{Happy, []string{"嬉しい", "楽しい", "幸せ", "好き", "ありがとう", "素晴らしい"}},
	{Sad, []string{"悲しい", "辛い", "嫌い", "疲れた", "困った", "不安"}},
}

// Classify 返回文本命中的第一个情感标签，无命中时返回 Neutral。
// 纯函数，无副作用。
func Classify(text string) Label {
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.label
			}
		}
	}
	return Neutral
}

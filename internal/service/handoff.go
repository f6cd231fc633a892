package service

import "strings"

// DefaultHandoffPhrases 是未配置 chat.handoff_phrases 时使用的转人工关键词。
// "manager" 也会命中把它当作职位的提问，这是已知的误判来源。
var DefaultHandoffPhrases = []string{
	"talk to human",
	"talk to a human",
	"speak to someone",
	"speak to a person",
	"real person",
	"human agent",
	"live agent",
	"customer service",
	"complaint",
	"urgent help",
	"manager",
	"supervisor",
}

// HandoffDetector 判断一条用户消息是否要求转人工。
type HandoffDetector struct {
	phrases []string
}

// NewHandoffDetector 创建 HandoffDetector，phrases 为空时使用 DefaultHandoffPhrases。
func NewHandoffDetector(phrases []string) *HandoffDetector {
	if len(phrases) == 0 {
		phrases = DefaultHandoffPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return &HandoffDetector{phrases: normalized}
}

// ShouldHandoff 对消息做不区分大小写的子串匹配。
func (d *HandoffDetector) ShouldHandoff(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

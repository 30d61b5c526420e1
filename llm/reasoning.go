package llm

import (
	"regexp"
	"strings"
)

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning 移除模型输出中的 <think>...</think> 推理块。
// 只出现结束标记时（开头被截断），丢弃结束标记及其之前的内容；
// 只出现未闭合的开始标记时，丢弃开始标记及其之后的内容。
func StripReasoning(text string) string {
	out := reasoningBlock.ReplaceAllString(text, "")
	if i := strings.LastIndex(out, reasoningClose); i >= 0 {
		out = out[i+len(reasoningClose):]
	}
	if i := strings.Index(out, reasoningOpen); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}

// HasReasoningMarkers 报告文本中是否残留推理标记
func HasReasoningMarkers(text string) bool {
	return strings.Contains(text, reasoningOpen) || strings.Contains(text, reasoningClose)
}

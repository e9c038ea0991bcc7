package service

import (
	"regexp"
	"strings"
)

var (
	thinkBlockPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	thinkOpenPattern  = regexp.MustCompile(`(?s)<think>.*$`)
)

// 部分模型不输出 <think> 标签，而是以一段口语化推理开头。
// 首段命中这些前缀且后面还有其他段落时，将首段视为思考内容。
var thinkingLeadMarkers = []string{
	"嗯，", "嗯,", "好的，", "好的,", "让我", "我先", "首先，我", "用户想",
}

// SplitThinking 把聊天模型输出拆成思考前言与正文两部分。
// 优先剥离 <think>…</think> 块；流式场景下未闭合的 <think> 视为全部在思考。
func SplitThinking(content string) (thinking, answer string) {
	if strings.Contains(content, "<think>") {
		var builder strings.Builder
		for _, match := range thinkBlockPattern.FindAllStringSubmatch(content, -1) {
			builder.WriteString(strings.TrimSpace(match[1]))
			builder.WriteString("\n")
		}

		remainder := thinkBlockPattern.ReplaceAllString(content, "")
		if strings.Contains(remainder, "<think>") {
			// 未闭合标签：标签之后的内容仍是思考
			open := thinkOpenPattern.FindString(remainder)
			builder.WriteString(strings.TrimSpace(strings.TrimPrefix(open, "<think>")))
			remainder = thinkOpenPattern.ReplaceAllString(remainder, "")
		}

		return strings.TrimSpace(builder.String()), strings.TrimSpace(remainder)
	}

	trimmed := strings.TrimSpace(content)
	paragraphs := strings.SplitN(trimmed, "\n\n", 2)
	if len(paragraphs) == 2 {
		head := strings.TrimSpace(paragraphs[0])
		for _, marker := range thinkingLeadMarkers {
			if strings.HasPrefix(head, marker) {
				return head, strings.TrimSpace(paragraphs[1])
			}
		}
	}

	return "", trimmed
}

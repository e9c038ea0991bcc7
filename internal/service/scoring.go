package service

import (
	"strings"
	"unicode"
)

// 三档固定得分。阈值与字符数分界是线上调参的结果，改动需重新校准。
const (
	ScoreFail      = 20
	ScorePass      = 80
	ScoreExcellent = 100
)

const (
	repeatedRunLimit   = 11
	minShortAnswer     = 30
	passUpperBound     = 200
	excellentPlainLen  = 300
	trivialAnswerLimit = 5
)

// 判定“有结构”的标点集合，中英文混用
const structuralPunctuation = "。！？，、；：…．.!?,;:"

// ScoreAnswer 按固定决策表为自由文本答案打分，返回 20/80/100 之一。
// 规则按顺序生效：空串、刷屏重复、纯数字、过短内容一律 20；
// 中等长度 80；长文且带标点或换行（或足够长）100。
func ScoreAnswer(answer string) int {
	trimmed := strings.TrimSpace(answer)
	runes := []rune(trimmed)
	length := len(runes)

	if length == 0 {
		return ScoreFail
	}
	if hasRepeatedRun(runes, repeatedRunLimit) {
		return ScoreFail
	}
	if digitsOnly(runes) {
		return ScoreFail
	}
	if length <= trivialAnswerLimit {
		return ScoreFail
	}
	if length >= minShortAnswer && length < passUpperBound {
		return ScorePass
	}
	if length >= passUpperBound {
		if length >= excellentPlainLen || hasStructureMarker(trimmed) {
			return ScoreExcellent
		}
		return ScorePass
	}
	if length < minShortAnswer {
		return ScoreFail
	}
	return ScorePass
}

// hasRepeatedRun 检测是否存在 limit 个以上连续相同字符（刷屏式作答）。
func hasRepeatedRun(runes []rune, limit int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= limit {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func digitsOnly(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(runes) > 0
}

func hasStructureMarker(s string) bool {
	if strings.ContainsRune(s, '\n') {
		return true
	}
	return strings.ContainsAny(s, structuralPunctuation)
}

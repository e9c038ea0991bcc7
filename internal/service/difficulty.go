package service

// Trend 描述最近成绩的走向
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

const (
	// 自适应调节所需的最少历史条数
	minAdaptHistory = 3
	// 滚动窗口大小
	adaptWindow = 5
	// 晋级均分线与降级均分线
	promoteAverage = 85
	demoteAverage  = 60
	// 趋势判定的均分差阈值
	trendDelta = 5
)

// DifficultyForLevel 在历史不足时按用户等级给出基准难度。
func DifficultyForLevel(level int) Difficulty {
	switch {
	case level >= 6:
		return DifficultyHard
	case level >= 3:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// AnalyzeTrend 以窗口前半段与后半段的均分之差判断走向。
// 样本不足两条时视为 stable。
func AnalyzeTrend(scores []int) Trend {
	if len(scores) < 2 {
		return TrendStable
	}

	mid := len(scores) / 2
	first := average(scores[:mid])
	second := average(scores[mid:])

	switch {
	case second-first > trendDelta:
		return TrendImproving
	case first-second > trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// RecommendDifficulty 依据某任务类别的历史得分推荐下一次的难度。
// scores 按时间从旧到新排列；不足 3 条时退回等级基准难度。
// 连续 3 次低于 60 分立即降档，优先于均分规则。
func RecommendDifficulty(current Difficulty, scores []int, userLevel int) Difficulty {
	if !current.IsValid() {
		current = DifficultyForLevel(userLevel)
	}

	if len(scores) < minAdaptHistory {
		return DifficultyForLevel(userLevel)
	}

	if lastAllBelow(scores, 3, demoteAverage) {
		return current.Lower()
	}

	recent := scores
	if len(recent) > adaptWindow {
		recent = recent[len(recent)-adaptWindow:]
	}

	avg := average(recent)
	trend := AnalyzeTrend(recent)

	if avg >= promoteAverage && trend != TrendDeclining {
		return current.Raise()
	}
	if avg <= demoteAverage && trend != TrendImproving {
		return current.Lower()
	}

	return current
}

func lastAllBelow(scores []int, count int, threshold float64) bool {
	if len(scores) < count {
		return false
	}
	for _, score := range scores[len(scores)-count:] {
		if float64(score) >= threshold {
			return false
		}
	}
	return true
}

func average(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

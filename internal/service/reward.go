package service

import "math"

// baseXPTable 定义各类别在不同难度下的基础经验值。
var baseXPTable = map[TaskType]map[Difficulty]int{
	TaskTypeReading:      {DifficultyEasy: 20, DifficultyMedium: 35, DifficultyHard: 50},
	TaskTypeAppreciation: {DifficultyEasy: 25, DifficultyMedium: 40, DifficultyHard: 60},
	TaskTypeReflection:   {DifficultyEasy: 20, DifficultyMedium: 30, DifficultyHard: 45},
	TaskTypeRecitation:   {DifficultyEasy: 15, DifficultyMedium: 25, DifficultyHard: 40},
}

// attributeRewardTable 定义各类别完成后奖励的属性点。
var attributeRewardTable = map[TaskType]map[string]int{
	TaskTypeReading:      {AttributeScholarship: 2, AttributeInsight: 1},
	TaskTypeAppreciation: {AttributeLiterary: 2, AttributeInsight: 1},
	TaskTypeReflection:   {AttributeInsight: 2, AttributeVirtue: 1},
	TaskTypeRecitation:   {AttributeLiterary: 1, AttributeScholarship: 1},
}

// StreakMilestone 描述一个连胜里程碑及对应的经验倍率。
type StreakMilestone struct {
	Days       int
	Multiplier float64
}

// 连胜里程碑按天数从高到低排列，取当前连胜已达到的最高档。
var streakMilestones = []StreakMilestone{
	{Days: 365, Multiplier: 1.5},
	{Days: 100, Multiplier: 1.3},
	{Days: 30, Multiplier: 1.2},
	{Days: 7, Multiplier: 1.1},
}

// BaseXP 返回 (类别, 难度) 的基础经验值，未知组合返回 0。
func BaseXP(taskType TaskType, difficulty Difficulty) int {
	if byDifficulty, ok := baseXPTable[taskType]; ok {
		return byDifficulty[difficulty]
	}
	return 0
}

// TaskXP 把得分映射为任务经验：20 分不得经验，80 分得基础值，100 分得 1.5 倍（向下取整）。
func TaskXP(taskType TaskType, difficulty Difficulty, score int) int {
	base := BaseXP(taskType, difficulty)
	switch score {
	case ScoreFail:
		return 0
	case ScoreExcellent:
		return int(math.Floor(float64(base) * 1.5))
	default:
		return base
	}
}

// StreakBonus 按当前连胜所达到的最高里程碑计算额外经验：
// floor(taskXP × (multiplier − 1))，未达任何里程碑时为 0。
func StreakBonus(taskXP, streak int) int {
	for _, milestone := range streakMilestones {
		if streak >= milestone.Days {
			return int(math.Floor(float64(taskXP) * (milestone.Multiplier - 1)))
		}
	}
	return 0
}

// AttributeRewards 返回类别对应属性点奖励的副本。
func AttributeRewards(taskType TaskType) map[string]int {
	rewards := map[string]int{}
	for name, points := range attributeRewardTable[taskType] {
		rewards[name] = points
	}
	return rewards
}

// 等级曲线：升到 L 级累计需要 500 × L^1.5 经验。
const levelXPCoef = 500.0

// XPRequiredForLevel 返回达到指定等级所需的累计经验，1 级起步无门槛。
func XPRequiredForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return int(math.Ceil(levelXPCoef * math.Pow(float64(level-1), 1.5)))
}

// LevelForTotalXP 返回累计经验对应的等级，最低 1 级。
func LevelForTotalXP(totalXP int) int {
	level := 1
	for XPRequiredForLevel(level+1) <= totalXP {
		level++
		if level > 200 {
			break
		}
	}
	return level
}

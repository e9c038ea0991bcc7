package db

import (
	"time"

	"gorm.io/gorm"
)

// User 定义修身用户模型
// Level/TotalXP 由奖励结算累计；Attributes 按属性名记录属性点
// CurrentStreak/LongestStreak 记录连续完成天数，LastStreakDate 为最近一次计入连胜的日期
type User struct {
	gorm.Model
	Username       string `gorm:"uniqueIndex;size:64"`
	PasswordHash   string
	Level          int `gorm:"default:1"`
	TotalXP        int
	CurrentStreak  int
	LongestStreak  int
	LastStreakDate *time.Time
	Attributes     map[string]int `gorm:"serializer:json"`
}

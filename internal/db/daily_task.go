package db

import (
	"time"

	"gorm.io/gorm"
)

// DailyTask 定义单个修身任务，生成入库后不再修改
// TaskID 为带版本号的业务标识（见 service 包的任务 ID 格式）
// Content 为按任务类型组织的自由负载，AttributeRewards 按属性名记录奖励点数
// SourceID 标记内容出处（如某回某段），用于跨功能防重复奖励
type DailyTask struct {
	gorm.Model
	TaskID           string `gorm:"uniqueIndex;size:128"`
	UserID           uint   `gorm:"index"`
	Type             string
	Difficulty       string
	Title            string
	Description      string
	EstimatedMinutes int
	XPReward         int
	AttributeRewards map[string]int `gorm:"serializer:json"`
	Content          map[string]any `gorm:"serializer:json"`
	PassScore        int
	ExcellentScore   int
	SourceID         string
}

// DailyTaskProgress 记录用户单日的任务进度
// UserID + Date 唯一，当日记录只创建一次，随提交逐步更新
// Scores 以任务 ID 为键记录得分，Feedback 记录 AI 点评
type DailyTaskProgress struct {
	gorm.Model
	UserID         uint   `gorm:"index;index:idx_progress_user_date,unique"`
	Date           string `gorm:"size:10;index:idx_progress_user_date,unique"`
	TaskIDs        []string          `gorm:"serializer:json"`
	CompletedIDs   []string          `gorm:"serializer:json"`
	SkippedIDs     []string          `gorm:"serializer:json"`
	Scores         map[string]int    `gorm:"serializer:json"`
	Feedback       map[string]string `gorm:"serializer:json"`
	XPEarned       int
	AttributeGains map[string]int `gorm:"serializer:json"`
	Streak         int
	CompletedAt    *time.Time
}

// TableName 固定表名，保证唯一索引作用于 user_id + date
func (DailyTaskProgress) TableName() string {
	return "daily_task_progresses"
}

// SourceConsumption 记录某用户已消费过的内容来源
// UserID + SourceID 唯一，防止同一段落在不同功能中重复刷取奖励
type SourceConsumption struct {
	gorm.Model
	UserID   uint   `gorm:"index:idx_source_user,unique"`
	SourceID string `gorm:"size:128;index:idx_source_user,unique"`
	TaskID   string
}

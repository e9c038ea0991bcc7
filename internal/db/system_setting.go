package db

import "gorm.io/gorm"

// 系统设置键名
const (
	SettingKeyAIProvider       = "ai_provider"
	SettingKeyOpenAIAPIKey     = "openai_api_key"
	SettingKeyDeepSeekAPIKey   = "deepseek_api_key"
	SettingKeyAITaskPrompt     = "ai_task_prompt"
	SettingKeyAIFeedbackPrompt = "ai_feedback_prompt"
)

// SystemSetting 以键值对形式存储可在后台调整的配置
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;size:64"`
	Value string
}

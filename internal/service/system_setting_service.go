package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiushen/internal/db"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"
)

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述后台可配置的 AI 相关设置。
type SystemSettings struct {
	AIProvider       string
	OpenAIAPIKey     string
	DeepSeekAPIKey   string
	AITaskPrompt     string
	AIFeedbackPrompt string
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	AIProvider       string
	OpenAIAPIKey     string
	DeepSeekAPIKey   string
	AITaskPrompt     string
	AIFeedbackPrompt string
}

// SystemSettingService 提供系统设置的读取与更新能力。
type SystemSettingService struct {
	db *gorm.DB
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{db: gdb}
}

var settingKeys = []string{
	db.SettingKeyAIProvider,
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyDeepSeekAPIKey,
	db.SettingKeyAITaskPrompt,
	db.SettingKeyAIFeedbackPrompt,
}

// GetSettings 读取系统设置，未设置项返回默认值。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := SystemSettings{AIProvider: AIProviderOpenAI}

	var records []db.SystemSetting
	if err := s.db.Where("key IN ?", settingKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for _, record := range records {
		switch record.Key {
		case db.SettingKeyAIProvider:
			if provider := normalizeAIProvider(record.Value); provider != "" {
				result.AIProvider = provider
			}
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = record.Value
		case db.SettingKeyDeepSeekAPIKey:
			result.DeepSeekAPIKey = record.Value
		case db.SettingKeyAITaskPrompt:
			result.AITaskPrompt = record.Value
		case db.SettingKeyAIFeedbackPrompt:
			result.AIFeedbackPrompt = record.Value
		}
	}

	return result, nil
}

// UpdateSettings 保存系统设置，provider 非法时回退到 openai。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	provider := normalizeAIProvider(input.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}

	sanitized := SystemSettings{
		AIProvider:       provider,
		OpenAIAPIKey:     strings.TrimSpace(input.OpenAIAPIKey),
		DeepSeekAPIKey:   strings.TrimSpace(input.DeepSeekAPIKey),
		AITaskPrompt:     strings.TrimSpace(input.AITaskPrompt),
		AIFeedbackPrompt: strings.TrimSpace(input.AIFeedbackPrompt),
	}

	values := map[string]string{
		db.SettingKeyAIProvider:       sanitized.AIProvider,
		db.SettingKeyOpenAIAPIKey:     sanitized.OpenAIAPIKey,
		db.SettingKeyDeepSeekAPIKey:   sanitized.DeepSeekAPIKey,
		db.SettingKeyAITaskPrompt:     sanitized.AITaskPrompt,
		db.SettingKeyAIFeedbackPrompt: sanitized.AIFeedbackPrompt,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			record := db.SystemSetting{Key: key, Value: value}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, err
	}

	return sanitized, nil
}

func normalizeAIProvider(raw string) string {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case AIProviderOpenAI:
		return AIProviderOpenAI
	case AIProviderDeepSeek:
		return AIProviderDeepSeek
	default:
		return ""
	}
}

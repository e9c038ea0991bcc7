package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiushen/internal/service"
)

type settingsPayload struct {
	AIProvider       string `json:"ai_provider"`
	OpenAIAPIKey     string `json:"openai_api_key"`
	DeepSeekAPIKey   string `json:"deepseek_api_key"`
	AITaskPrompt     string `json:"ai_task_prompt"`
	AIFeedbackPrompt string `json:"ai_feedback_prompt"`
}

// GetSettings 返回 AI 相关设置。API Key 只回传是否已配置，不回传明文。
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取设置失败")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"ai_provider":        settings.AIProvider,
		"openai_key_set":     settings.OpenAIAPIKey != "",
		"deepseek_key_set":   settings.DeepSeekAPIKey != "",
		"ai_task_prompt":     settings.AITaskPrompt,
		"ai_feedback_prompt": settings.AIFeedbackPrompt,
	})
}

// UpdateSettings 更新 AI 相关设置。
func (a *API) UpdateSettings(c *gin.Context) {
	var payload settingsPayload
	if !bindJSON(c, &payload, "请求体格式错误") {
		return
	}

	updated, err := a.system.UpdateSettings(service.SystemSettingsInput{
		AIProvider:       payload.AIProvider,
		OpenAIAPIKey:     payload.OpenAIAPIKey,
		DeepSeekAPIKey:   payload.DeepSeekAPIKey,
		AITaskPrompt:     payload.AITaskPrompt,
		AIFeedbackPrompt: payload.AIFeedbackPrompt,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "保存设置失败")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"ai_provider": updated.AIProvider})
}

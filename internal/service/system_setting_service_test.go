package service

import (
	"errors"
	"testing"

	"github.com/xiushen/internal/db"
)

func TestSystemSettingsDefaults(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewSystemSettingService(db.DB)
	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings returned error: %v", err)
	}
	if settings.AIProvider != AIProviderOpenAI {
		t.Fatalf("expected default provider openai, got %q", settings.AIProvider)
	}
	if settings.OpenAIAPIKey != "" || settings.DeepSeekAPIKey != "" {
		t.Fatal("expected empty api keys by default")
	}
}

func TestSystemSettingsUpdateRoundTrip(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewSystemSettingService(db.DB)
	if _, err := svc.UpdateSettings(SystemSettingsInput{
		AIProvider:     " DeepSeek ",
		DeepSeekAPIKey: "  sk-test  ",
		AITaskPrompt:   "自定义出题提示词",
	}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}

	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings returned error: %v", err)
	}
	if settings.AIProvider != AIProviderDeepSeek {
		t.Fatalf("provider should be normalized, got %q", settings.AIProvider)
	}
	if settings.DeepSeekAPIKey != "sk-test" {
		t.Fatalf("api key should be trimmed, got %q", settings.DeepSeekAPIKey)
	}
	if settings.AITaskPrompt != "自定义出题提示词" {
		t.Fatalf("unexpected task prompt %q", settings.AITaskPrompt)
	}

	// 非法 provider 回退到 openai
	if _, err := svc.UpdateSettings(SystemSettingsInput{AIProvider: "claude"}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	settings, _ = svc.GetSettings()
	if settings.AIProvider != AIProviderOpenAI {
		t.Fatalf("invalid provider should fall back to openai, got %q", settings.AIProvider)
	}
}

func TestAIClientRequiresAPIKey(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	settings := NewSystemSettingService(db.DB)
	client := newAIChatClient(settings, "gpt-4o-mini", "deepseek-chat")

	_, err := client.call(t.Context(), aiChatRequest{UserPrompt: "测试"})
	if !errors.Is(err, ErrAIAPIKeyMissing) {
		t.Fatalf("expected ErrAIAPIKeyMissing, got %v", err)
	}
}

package service

import (
	"context"
	"strings"
	"testing"

	"github.com/xiushen/internal/db"
)

func newFeedbackTask() *db.DailyTask {
	return &db.DailyTask{
		TaskID: "v1_reading_easy_20260825_abcd1234_1756000000",
		Type:   string(TaskTypeReading),
		Title:  "研读原文·第一回",
	}
}

func TestFeedbackFallbackTiers(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewFeedbackService(NewSystemSettingService(db.DB))
	task := newFeedbackTask()
	ctx := context.Background()

	texts := map[int]string{}
	for _, score := range []int{ScoreFail, ScorePass, ScoreExcellent} {
		feedback := svc.Generate(ctx, task, "随便写写", score)
		if feedback.Text == "" || feedback.HTML == "" {
			t.Fatalf("feedback must never be empty, score=%d", score)
		}
		if !strings.Contains(feedback.Text, task.Title) {
			t.Fatalf("template feedback should mention the task title, got %q", feedback.Text)
		}
		texts[score] = feedback.Text
	}

	// 三个得分档的模板各不相同
	if texts[ScoreFail] == texts[ScorePass] || texts[ScorePass] == texts[ScoreExcellent] {
		t.Fatalf("score tiers should produce distinct feedback: %v", texts)
	}
}

func TestFeedbackUsesModelOutput(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	settings := NewSystemSettingService(db.DB)
	enableOpenAI(t, settings)

	doer := &fakeAIDoer{content: "**写得很好**，黛玉的孤高你抓得很准。建议再留意草蛇灰线的伏笔。"}

	svc := NewFeedbackService(settings)
	svc.SetHTTPClient(doer)

	feedback := svc.Generate(context.Background(), newFeedbackTask(), "黛玉的敏感源自寄人篱下的处境。", ScorePass)
	if feedback.Text != doer.content {
		t.Fatalf("expected model feedback, got %q", feedback.Text)
	}
	// Markdown 渲染为净化后的 HTML
	if !strings.Contains(feedback.HTML, "<strong>") {
		t.Fatalf("expected rendered markdown, got %q", feedback.HTML)
	}
	if strings.Contains(feedback.HTML, "<script") {
		t.Fatalf("html must be sanitized, got %q", feedback.HTML)
	}
}

func TestFeedbackEmptyModelOutputFallsBack(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	settings := NewSystemSettingService(db.DB)
	enableOpenAI(t, settings)

	// 模型只输出了思考内容，正文为空
	doer := &fakeAIDoer{content: "<think>还没想好怎么点评。</think>"}

	svc := NewFeedbackService(settings)
	svc.SetHTTPClient(doer)

	task := newFeedbackTask()
	feedback := svc.Generate(context.Background(), task, "作答内容", ScorePass)
	if !strings.Contains(feedback.Text, task.Title) {
		t.Fatalf("expected template fallback, got %q", feedback.Text)
	}
}

func TestFeedbackAPIErrorFallsBack(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	settings := NewSystemSettingService(db.DB)
	enableOpenAI(t, settings)

	doer := &fakeAIDoer{status: 500, rawBody: `{"error":{"message":"rate limited"}}`}

	svc := NewFeedbackService(settings)
	svc.SetHTTPClient(doer)

	task := newFeedbackTask()
	feedback := svc.Generate(context.Background(), task, "作答内容", ScoreExcellent)
	if feedback.Text == "" || !strings.Contains(feedback.Text, task.Title) {
		t.Fatalf("api error must fall back to template, got %q", feedback.Text)
	}
}

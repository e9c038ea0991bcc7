package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/logger"
)

const (
	defaultOpenAIFeedbackModel   = "gpt-4o-mini"
	defaultDeepSeekFeedbackModel = "deepseek-chat"
	defaultFeedbackMaxTokens     = 300
	defaultFeedbackTemperature   = 0.5
	feedbackGenerateTimeout      = 6 * time.Second
	maxFeedbackAnswerRunes       = 1000
)

const defaultFeedbackSystemPrompt = "你是一位温和的红楼梦研读导师。针对学习者的作答给出两三句点评，" +
	"先肯定可取之处，再提一条具体建议。使用 Markdown，不要输出评分。"

// Feedback 为一次作答的点评，Text 为 Markdown 原文，HTML 为渲染后的安全片段。
type Feedback struct {
	Text string
	HTML string
}

// FeedbackService 生成作答点评。模型不可用时使用按得分分档的模板，
// 点评永远不会作为错误返回给调用方。
type FeedbackService struct {
	client   *aiChatClient
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	timeout  time.Duration
}

// NewFeedbackService 构造默认的 FeedbackService。
func NewFeedbackService(settings *SystemSettingService) *FeedbackService {
	return &FeedbackService{
		client:   newAIChatClient(settings, defaultOpenAIFeedbackModel, defaultDeepSeekFeedbackModel),
		markdown: goldmark.New(),
		policy:   bluemonday.UGCPolicy(),
		timeout:  feedbackGenerateTimeout,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *FeedbackService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *FeedbackService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// Generate 为一次作答生成点评。任何失败都落回模板，不向上抛错。
func (s *FeedbackService) Generate(ctx context.Context, task *db.DailyTask, answer string, score int) Feedback {
	text, err := s.generateWithModel(ctx, task, answer, score)
	if err != nil {
		logger.Warnf("ai feedback fell back to template: task=%s err=%v", task.TaskID, err)
		text = fallbackFeedback(task, score)
	}

	return Feedback{Text: text, HTML: s.render(text)}
}

func (s *FeedbackService) generateWithModel(ctx context.Context, task *db.DailyTask, answer string, score int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return "", err
	}

	systemPrompt := strings.TrimSpace(settings.AIFeedbackPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultFeedbackSystemPrompt
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "任务：%s（%s）\n", task.Title, taskTypeLabels[TaskType(task.Type)])
	fmt.Fprintf(&builder, "得分档：%d\n", score)
	builder.WriteString("作答：\n")
	builder.WriteString(truncateRunes(answer, maxFeedbackAnswerRunes))
	userPrompt := builder.String()
	logAIExchange("FEEDBACK", "prompt", userPrompt)

	resp, err := s.client.call(ctx, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultFeedbackMaxTokens,
		Temperature:  defaultFeedbackTemperature,
	})
	if err != nil {
		return "", err
	}
	logAIExchange("FEEDBACK", "response", resp.Content)

	_, text := SplitThinking(resp.Content)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("模型返回空点评")
	}
	return strings.TrimSpace(text), nil
}

// render 把 Markdown 点评渲染为净化后的 HTML 片段。
func (s *FeedbackService) render(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return s.policy.Sanitize(text)
	}
	return s.policy.Sanitize(buf.String())
}

// fallbackFeedback 按得分分档给出确定性的模板点评。
func fallbackFeedback(task *db.DailyTask, score int) string {
	switch score {
	case ScoreExcellent:
		return fmt.Sprintf("这次「%s」完成得很用心，文字有层次也有自己的见地。保持这样的研读习惯，日积月累自见功力。", task.Title)
	case ScorePass:
		return fmt.Sprintf("「%s」完成得不错。若能在作答中多引一两处原文、再展开一点自己的体会，会更见深度。", task.Title)
	default:
		return fmt.Sprintf("这次「%s」的作答还比较简略。不妨先把段落再读一遍，把感受写成完整的句子，哪怕只有几行也好。", task.Title)
	}
}

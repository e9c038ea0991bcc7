package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/xiushen/internal/cache"
	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/logger"
)

const (
	defaultOpenAITaskModel   = "gpt-4o-mini"
	defaultDeepSeekTaskModel = "deepseek-chat"
	defaultTaskTemperature   = 0.7
	defaultTaskMaxTokens     = 800
	// 生成调用的超时上限，超时即落回确定性模板
	taskGenerateTimeout = 8 * time.Second
	// 任务内容缓存的固定 TTL
	taskCacheTTL = time.Hour
)

// 各类别的抽取权重，研读与感悟为主，鉴赏与背诵为辅。
var taskTypeWeights = map[TaskType]int{
	TaskTypeReading:      35,
	TaskTypeReflection:   30,
	TaskTypeAppreciation: 20,
	TaskTypeRecitation:   15,
}

// 各类别内容负载的必填字段
var requiredContentFields = map[TaskType][]string{
	TaskTypeReading:      {"passage", "question"},
	TaskTypeAppreciation: {"poem", "question"},
	TaskTypeReflection:   {"topic", "hints"},
	TaskTypeRecitation:   {"passage", "requirement"},
}

var taskTypeLabels = map[TaskType]string{
	TaskTypeReading:      "研读原文",
	TaskTypeAppreciation: "诗词鉴赏",
	TaskTypeReflection:   "感悟笔记",
	TaskTypeRecitation:   "摘抄背诵",
}

var estimatedMinutesTable = map[Difficulty]int{
	DifficultyEasy:   5,
	DifficultyMedium: 10,
	DifficultyHard:   15,
}

const defaultTaskSystemPrompt = "你是一位红楼梦研读导师，为学习者设计每日修身任务。" +
	"只输出一个 JSON 对象，不要输出任何其他文字。"

// TaskGenerator 负责生成每日任务：类别加权抽取、提示词构造、
// 模型调用与兜底模板。模型不可用时任务内容完全由模板生成。
type TaskGenerator struct {
	chapters *ChapterService
	client   *aiChatClient
	store    cache.Store
	timeout  time.Duration

	// 生成器被所有请求共享，而 math/rand.Rand 不是并发安全的
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewTaskGenerator 构造 TaskGenerator。
func NewTaskGenerator(gdb *gorm.DB, settings *SystemSettingService, store cache.Store) *TaskGenerator {
	return &TaskGenerator{
		chapters: NewChapterService(gdb),
		client:   newAIChatClient(settings, defaultOpenAITaskModel, defaultDeepSeekTaskModel),
		store:    store,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		timeout:  taskGenerateTimeout,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (g *TaskGenerator) SetHTTPClient(client httpDoer) {
	g.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (g *TaskGenerator) SetOpenAIBaseURL(base string) {
	g.client.SetOpenAIBaseURL(base)
}

// SetRand 覆盖随机源，便于测试确定性抽取。
func (g *TaskGenerator) SetRand(rng *rand.Rand) {
	if rng == nil {
		return
	}
	g.rngMu.Lock()
	g.rng = rng
	g.rngMu.Unlock()
}

// PickTypes 按权重不放回地抽取 n 个任务类别。
func (g *TaskGenerator) PickTypes(n int) []TaskType {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()

	remaining := make([]TaskType, len(AllTaskTypes))
	copy(remaining, AllTaskTypes)

	if n > len(remaining) {
		n = len(remaining)
	}

	picked := make([]TaskType, 0, n)
	for len(picked) < n {
		total := 0
		for _, t := range remaining {
			total += taskTypeWeights[t]
		}

		roll := g.rng.Intn(total)
		for i, t := range remaining {
			roll -= taskTypeWeights[t]
			if roll < 0 {
				picked = append(picked, t)
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}

	return picked
}

// generatedContent 是模型返回（或模板兜底）后的任务内容。
type generatedContent struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Content     map[string]any `json:"content"`
	SourceID    string         `json:"source_id"`
}

// Generate 为指定用户生成一条任务并写入数据库。
// used 中的内容来源不会再被选中，避免同一批任务或已领过奖励的段落重复出现。
// 模型调用失败、超时或返回非法 JSON 时使用确定性模板，错误不外传。
func (g *TaskGenerator) Generate(ctx context.Context, userID uint, date time.Time, taskType TaskType, difficulty Difficulty, used map[string]bool) (*db.DailyTask, error) {
	content := g.contentFor(ctx, date, taskType, difficulty, used)
	if used != nil && content.SourceID != "" {
		used[content.SourceID] = true
	}

	id := NewTaskID(taskType, difficulty, date, time.Now())
	task := &db.DailyTask{
		TaskID:           id.String(),
		UserID:           userID,
		Type:             string(taskType),
		Difficulty:       string(difficulty),
		Title:            content.Title,
		Description:      content.Description,
		EstimatedMinutes: estimatedMinutesTable[difficulty],
		XPReward:         BaseXP(taskType, difficulty),
		AttributeRewards: AttributeRewards(taskType),
		Content:          content.Content,
		PassScore:        ScorePass,
		ExcellentScore:   ScoreExcellent,
		SourceID:         content.SourceID,
	}

	if err := g.chapters.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("create daily task: %w", err)
	}
	return task, nil
}

// contentFor 返回任务内容：优先取缓存，其次调用模型，最后落回模板。
// 缓存内容的来源已被占用时放弃缓存重新生成。
func (g *TaskGenerator) contentFor(ctx context.Context, date time.Time, taskType TaskType, difficulty Difficulty, used map[string]bool) generatedContent {
	cacheKey := fmt.Sprintf("daily:content:%s:%s:%s", date.Format("2006-01-02"), taskType, difficulty)
	if g.store != nil {
		if cached, ok := g.store.Get(ctx, cacheKey); ok {
			var content generatedContent
			if err := json.Unmarshal([]byte(cached), &content); err == nil && content.Title != "" && !used[content.SourceID] {
				return content
			}
		}
	}

	passage := g.pickPassage(used)

	content, err := g.generateWithModel(ctx, taskType, difficulty, passage)
	if err != nil {
		logger.Warnf("ai task generation fell back to template: type=%s difficulty=%s err=%v", taskType, difficulty, err)
		content = fallbackContent(taskType, difficulty, passage)
	}

	if g.store != nil {
		if raw, err := json.Marshal(content); err == nil {
			_ = g.store.Set(ctx, cacheKey, string(raw), taskCacheTTL)
		}
	}

	return content
}

// generateWithModel 在超时限制内调用模型并校验返回的 JSON。
func (g *TaskGenerator) generateWithModel(ctx context.Context, taskType TaskType, difficulty Difficulty, passage *Passage) (generatedContent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	settings, err := g.client.settings.GetSettings()
	if err != nil {
		return generatedContent{}, err
	}

	systemPrompt := strings.TrimSpace(settings.AITaskPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultTaskSystemPrompt
	}

	userPrompt := buildTaskPrompt(taskType, difficulty, passage)
	logAIExchange("TASK", "prompt", userPrompt)

	resp, err := g.client.call(ctx, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultTaskMaxTokens,
		Temperature:  defaultTaskTemperature,
	})
	if err != nil {
		return generatedContent{}, err
	}
	logAIExchange("TASK", "response", resp.Content)

	_, answer := SplitThinking(resp.Content)
	return parseTaskContent(answer, taskType, passage)
}

func buildTaskPrompt(taskType TaskType, difficulty Difficulty, passage *Passage) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "任务类别：%s\n难度：%s\n", taskTypeLabels[taskType], difficulty)
	fmt.Fprintf(&builder, "出处：%s\n原文：\n%s\n\n", passage.ChapterTitle, passage.Text)
	builder.WriteString("请输出 JSON 对象，字段包括 title、description")
	for _, field := range requiredContentFields[taskType] {
		builder.WriteString("、")
		builder.WriteString(field)
	}
	builder.WriteString("。所有字段均为非空字符串。")
	return builder.String()
}

// parseTaskContent 提取并校验模型输出中的 JSON，缺字段即报错。
func parseTaskContent(answer string, taskType TaskType, passage *Passage) (generatedContent, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return generatedContent{}, errors.New("模型输出中没有 JSON 对象")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(answer[start:end+1]), &fields); err != nil {
		return generatedContent{}, fmt.Errorf("模型输出不是合法 JSON: %w", err)
	}

	title := stringField(fields, "title")
	description := stringField(fields, "description")
	if title == "" || description == "" {
		return generatedContent{}, errors.New("模型输出缺少 title/description")
	}

	content := map[string]any{}
	for _, field := range requiredContentFields[taskType] {
		value := stringField(fields, field)
		if value == "" {
			return generatedContent{}, fmt.Errorf("模型输出缺少字段 %s", field)
		}
		content[field] = value
	}

	return generatedContent{
		Title:       title,
		Description: description,
		Content:     content,
		SourceID:    passage.SourceID,
	}, nil
}

func stringField(fields map[string]any, key string) string {
	if value, ok := fields[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// fallbackContent 生成确定性的模板任务，保证模型不可用时功能可用。
func fallbackContent(taskType TaskType, difficulty Difficulty, passage *Passage) generatedContent {
	label := taskTypeLabels[taskType]
	title := fmt.Sprintf("%s·%s", label, passage.ChapterTitle)
	snippet := truncateRunes(passage.Text, 120)

	content := map[string]any{}
	var description string

	switch taskType {
	case TaskTypeReading:
		description = "细读下面的段落，回答问题并写下你的理解。"
		content["passage"] = passage.Text
		content["question"] = fmt.Sprintf("这段文字（%s）刻画了怎样的人物与情境？请结合原文作答。", snippet)
	case TaskTypeAppreciation:
		description = "品读这段文字中的韵致，从意象与声律入手写一段鉴赏。"
		content["poem"] = passage.Text
		content["question"] = "这段文字的妙处何在？请从用词与意境两方面品评。"
	case TaskTypeReflection:
		description = "就以下主题写一篇自由感想，不拘长短，贵在真切。"
		content["topic"] = fmt.Sprintf("读「%s」有感", passage.ChapterTitle)
		content["hints"] = "可以从人物命运、世情冷暖或自身经历展开。"
	case TaskTypeRecitation:
		description = "将下面的段落摘抄或默写一遍，体会行文的节奏。"
		content["passage"] = passage.Text
		content["requirement"] = "逐字抄录，注意标点与分句。"
	}

	return generatedContent{
		Title:       title,
		Description: description,
		Content:     content,
		SourceID:    passage.SourceID,
	}
}

// pickPassage 随机选段并避开已占用的来源；章回库为空或多次撞车时
// 退回内置名段轮换。全部内置段也被占用时清空 SourceID，保证任务仍可完成。
func (g *TaskGenerator) pickPassage(used map[string]bool) *Passage {
	for attempt := 0; attempt < 10; attempt++ {
		g.rngMu.Lock()
		passage, err := g.chapters.RandomPassage(g.rng)
		g.rngMu.Unlock()
		if err != nil {
			if !errors.Is(err, ErrNoChapters) {
				logger.Warnf("random passage failed: %v", err)
			}
			break
		}
		if !used[passage.SourceID] {
			return passage
		}
	}

	for _, passage := range builtinPassages {
		if !used[passage.SourceID] {
			p := passage
			return &p
		}
	}

	p := builtinPassages[0]
	p.SourceID = ""
	return &p
}

// builtinPassages 是章回库为空时的兜底名段。
var builtinPassages = []Passage{
	{
		ChapterNumber:  1,
		ChapterTitle:   "第一回 甄士隐梦幻识通灵 贾雨村风尘怀闺秀",
		ParagraphIndex: 0,
		Text:           "满纸荒唐言，一把辛酸泪。都云作者痴，谁解其中味？",
		SourceID:       "chapter:1:0",
	},
	{
		ChapterNumber:  1,
		ChapterTitle:   "第一回 甄士隐梦幻识通灵 贾雨村风尘怀闺秀",
		ParagraphIndex: 1,
		Text:           "世人都晓神仙好，惟有功名忘不了。古今将相在何方？荒冢一堆草没了。",
		SourceID:       "chapter:1:1",
	},
	{
		ChapterNumber:  3,
		ChapterTitle:   "第三回 贾雨村夤缘复旧职 林黛玉抛父进京都",
		ParagraphIndex: 2,
		Text:           "两弯似蹙非蹙罥烟眉，一双似喜非喜含情目。态生两靥之愁，娇袭一身之病。",
		SourceID:       "chapter:3:2",
	},
	{
		ChapterNumber:  5,
		ChapterTitle:   "第五回 游幻境指迷十二钗 饮仙醪曲演红楼梦",
		ParagraphIndex: 3,
		Text:           "假作真时真亦假，无为有处有还无。",
		SourceID:       "chapter:5:3",
	},
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiushen/internal/cache"
	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/logger"
)

var (
	// ErrTaskNotFound 在任务不属于当日任务单时返回
	ErrTaskNotFound = errors.New("task not found in today's assignments")
	// ErrTaskAlreadyCompleted 在任务已完成后重复提交时返回
	ErrTaskAlreadyCompleted = errors.New("task already completed")
	// ErrTaskAlreadySkipped 在任务已跳过后再操作时返回
	ErrTaskAlreadySkipped = errors.New("task already skipped")
	// ErrSubmitTooFrequent 在触发提交冷却时返回
	ErrSubmitTooFrequent = errors.New("submitting too frequently, please wait")
	// ErrSourceConsumed 在同一内容来源重复领取奖励时返回
	ErrSourceConsumed = errors.New("content source already rewarded")
	// ErrNoProgressToday 在当日进度记录不存在时返回
	ErrNoProgressToday = errors.New("no progress record for today")
)

const (
	// 两次提交之间的最小间隔
	submitCooldown = 5 * time.Second
	// 每日分配的任务数
	tasksPerDay = 3
	// 统计读取历史的窗口天数，完成数与经验总和用同一窗口
	statsWindowDays = 365
	// 难度自适应回看的天数
	adaptHistoryDays = 60

	progressDateFormat = "2006-01-02"
)

// DailyTaskService 串联任务生成、打分、奖励与进度持久化，
// 是每日修身功能的编排入口。
type DailyTaskService struct {
	db        *gorm.DB
	store     cache.Store
	generator *TaskGenerator
	feedback  *FeedbackService
	users     *UserService
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewDailyTaskService 构造 DailyTaskService。
func NewDailyTaskService(gdb *gorm.DB, settings *SystemSettingService, store cache.Store) *DailyTaskService {
	return &DailyTaskService{
		db:        gdb,
		store:     store,
		generator: NewTaskGenerator(gdb, settings, store),
		feedback:  NewFeedbackService(settings),
		users:     NewUserService(gdb),
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// SetClock 覆盖时间源，便于测试跨日逻辑。
func (s *DailyTaskService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Generator 暴露任务生成器，用于注入测试桩。
func (s *DailyTaskService) Generator() *TaskGenerator {
	return s.generator
}

// FeedbackService 暴露点评服务，用于注入测试桩。
func (s *DailyTaskService) FeedbackService() *FeedbackService {
	return s.feedback
}

// Today 返回用户当日的进度与任务，首次调用时生成并落库。
// 同一 (用户, 日期) 的进度记录只创建一次。
func (s *DailyTaskService) Today(ctx context.Context, userID uint) (*db.DailyTaskProgress, []db.DailyTask, error) {
	date := s.today()

	var progress db.DailyTaskProgress
	err := s.db.Where("user_id = ? AND date = ?", userID, date).First(&progress).Error
	if err == nil {
		tasks, terr := s.tasksByIDs(progress.TaskIDs)
		return &progress, tasks, terr
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("load progress: %w", err)
	}

	user, err := s.users.Get(userID)
	if err != nil {
		return nil, nil, err
	}

	// 已领过奖励的内容来源不再分配，避免生成无法完成的任务
	used, err := s.consumedSources(userID)
	if err != nil {
		return nil, nil, err
	}

	dateTime, _ := time.ParseInLocation(progressDateFormat, date, time.Local)
	taskIDs := make([]string, 0, tasksPerDay)
	for _, taskType := range s.generator.PickTypes(tasksPerDay) {
		scores, last, herr := s.categoryState(userID, taskType)
		if herr != nil {
			return nil, nil, herr
		}

		// 以该类别最近一次的难度为基准，升档才能逐日累进
		difficulty := RecommendDifficulty(last, scores, user.Level)
		task, gerr := s.generator.Generate(ctx, userID, dateTime, taskType, difficulty, used)
		if gerr != nil {
			return nil, nil, gerr
		}
		taskIDs = append(taskIDs, task.TaskID)
	}

	progress = db.DailyTaskProgress{
		UserID:         userID,
		Date:           date,
		TaskIDs:        taskIDs,
		CompletedIDs:   []string{},
		SkippedIDs:     []string{},
		Scores:         map[string]int{},
		Feedback:       map[string]string{},
		AttributeGains: map[string]int{},
		Streak:         user.CurrentStreak,
	}

	// 并发请求同一天时靠唯一索引收敛到单条记录
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&progress).Error; err != nil {
		return nil, nil, fmt.Errorf("create progress: %w", err)
	}

	if err := s.db.Where("user_id = ? AND date = ?", userID, date).First(&progress).Error; err != nil {
		return nil, nil, fmt.Errorf("reload progress: %w", err)
	}

	tasks, err := s.tasksByIDs(progress.TaskIDs)
	return &progress, tasks, err
}

// SubmitResult 汇总一次提交的结算结果。
type SubmitResult struct {
	TaskID      string
	Score       int
	BaseXP      int
	StreakBonus int
	XPEarned    int
	DayComplete bool
	Streak      int
	Feedback    Feedback
}

// Submit 处理一次任务提交：冷却检查、校验、打分、奖励结算与点评。
// 进度写入失败会抛给调用方；属性点更新与点评写入为尽力而为。
func (s *DailyTaskService) Submit(ctx context.Context, userID uint, rawTaskID, answer string) (*SubmitResult, error) {
	if _, err := ParseTaskID(rawTaskID); err != nil {
		return nil, err
	}

	if !s.passCooldown(ctx, userID) {
		return nil, ErrSubmitTooFrequent
	}

	progress, err := s.todayProgress(userID)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(progress.TaskIDs, rawTaskID) {
		return nil, ErrTaskNotFound
	}
	if slices.Contains(progress.CompletedIDs, rawTaskID) {
		return nil, ErrTaskAlreadyCompleted
	}
	if slices.Contains(progress.SkippedIDs, rawTaskID) {
		return nil, ErrTaskAlreadySkipped
	}

	var task db.DailyTask
	if err := s.db.Where("task_id = ?", rawTaskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	user, err := s.users.Get(userID)
	if err != nil {
		return nil, err
	}

	// 同一内容来源每人只计一次奖励（跨功能防刷）
	if task.SourceID != "" {
		var count int64
		if err := s.db.Model(&db.SourceConsumption{}).
			Where("user_id = ? AND source_id = ?", userID, task.SourceID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check source consumption: %w", err)
		}
		if count > 0 {
			return nil, ErrSourceConsumed
		}
	}

	sanitized := s.sanitizer.Sanitize(answer)
	score := ScoreAnswer(sanitized)

	taskType := TaskType(task.Type)
	difficulty := Difficulty(task.Difficulty)
	baseXP := TaskXP(taskType, difficulty, score)
	bonus := StreakBonus(baseXP, user.CurrentStreak)
	total := baseXP + bonus

	if progress.Scores == nil {
		progress.Scores = map[string]int{}
	}
	if progress.AttributeGains == nil {
		progress.AttributeGains = map[string]int{}
	}

	progress.CompletedIDs = append(progress.CompletedIDs, rawTaskID)
	progress.Scores[rawTaskID] = score
	progress.XPEarned += total

	var gains map[string]int
	if score >= task.PassScore {
		gains = AttributeRewards(taskType)
		for name, points := range gains {
			progress.AttributeGains[name] += points
		}
	}

	dayComplete := s.rollUpStreak(progress, user)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(progress).Error; err != nil {
			return fmt.Errorf("save progress: %w", err)
		}

		if task.SourceID != "" {
			consumption := db.SourceConsumption{UserID: userID, SourceID: task.SourceID, TaskID: rawTaskID}
			if err := tx.Create(&consumption).Error; err != nil {
				return fmt.Errorf("record source consumption: %w", err)
			}
		}

		user.TotalXP += total
		user.Level = LevelForTotalXP(user.TotalXP)
		if err := tx.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"total_xp":         user.TotalXP,
			"level":            user.Level,
			"current_streak":   user.CurrentStreak,
			"longest_streak":   user.LongestStreak,
			"last_streak_date": user.LastStreakDate,
		}).Error; err != nil {
			return fmt.Errorf("save user progress: %w", err)
		}
		return nil
	})
	if err != nil {
		// 经验丢失不可接受，进度写入失败必须让调用方感知
		logger.Errorf("submit persistence failed user=%d task=%s: %v", userID, rawTaskID, err)
		return nil, err
	}

	// 属性点为尽力而为，失败只记日志
	if len(gains) > 0 {
		s.applyAttributeGains(user, gains)
	}

	feedback := s.feedback.Generate(ctx, &task, sanitized, score)
	if progress.Feedback == nil {
		progress.Feedback = map[string]string{}
	}
	progress.Feedback[rawTaskID] = feedback.Text
	if err := s.db.Save(progress).Error; err != nil {
		logger.Warnf("save feedback failed task=%s: %v", rawTaskID, err)
	}

	return &SubmitResult{
		TaskID:      rawTaskID,
		Score:       score,
		BaseXP:      baseXP,
		StreakBonus: bonus,
		XPEarned:    total,
		DayComplete: dayComplete,
		Streak:      user.CurrentStreak,
		Feedback:    feedback,
	}, nil
}

// Skip 跳过一个任务。跳过不计经验，但计入当日完成度。
func (s *DailyTaskService) Skip(ctx context.Context, userID uint, rawTaskID string) (*db.DailyTaskProgress, error) {
	if _, err := ParseTaskID(rawTaskID); err != nil {
		return nil, err
	}

	progress, err := s.todayProgress(userID)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(progress.TaskIDs, rawTaskID) {
		return nil, ErrTaskNotFound
	}
	if slices.Contains(progress.CompletedIDs, rawTaskID) {
		return nil, ErrTaskAlreadyCompleted
	}
	if slices.Contains(progress.SkippedIDs, rawTaskID) {
		return nil, ErrTaskAlreadySkipped
	}

	user, err := s.users.Get(userID)
	if err != nil {
		return nil, err
	}

	progress.SkippedIDs = append(progress.SkippedIDs, rawTaskID)
	s.rollUpStreak(progress, user)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(progress).Error; err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		if err := tx.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"current_streak":   user.CurrentStreak,
			"longest_streak":   user.LongestStreak,
			"last_streak_date": user.LastStreakDate,
		}).Error; err != nil {
			return fmt.Errorf("save user streak: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return progress, nil
}

// rollUpStreak 在当日全部任务完成或跳过时推进连胜。
// 与前一日连续则 +1，否则重新从 1 起算。返回当日是否已收官。
func (s *DailyTaskService) rollUpStreak(progress *db.DailyTaskProgress, user *db.User) bool {
	if len(progress.CompletedIDs)+len(progress.SkippedIDs) < len(progress.TaskIDs) {
		return false
	}

	today := s.todayDate()
	if user.LastStreakDate != nil && sameDate(*user.LastStreakDate, today) {
		return true
	}

	yesterday := today.AddDate(0, 0, -1)
	if user.LastStreakDate != nil && sameDate(*user.LastStreakDate, yesterday) {
		user.CurrentStreak++
	} else {
		user.CurrentStreak = 1
	}
	if user.CurrentStreak > user.LongestStreak {
		user.LongestStreak = user.CurrentStreak
	}
	user.LastStreakDate = &today

	now := s.now()
	progress.Streak = user.CurrentStreak
	progress.CompletedAt = &now
	return true
}

func (s *DailyTaskService) applyAttributeGains(user *db.User, gains map[string]int) {
	if user.Attributes == nil {
		user.Attributes = map[string]int{}
	}
	for name, points := range gains {
		user.Attributes[name] += points
	}
	if err := s.db.Save(user).Error; err != nil {
		logger.Errorf("apply attribute gains failed user=%d: %v", user.ID, err)
	}
}

// passCooldown 通过 TTL 存储实现 5 秒提交冷却，存储故障时放行。
func (s *DailyTaskService) passCooldown(ctx context.Context, userID uint) bool {
	if s.store == nil {
		return true
	}
	key := fmt.Sprintf("daily:cooldown:%d", userID)
	ok, err := s.store.SetNX(ctx, key, "1", submitCooldown)
	if err != nil {
		return true
	}
	return ok
}

// TaskHistoryRecord 是进度记录的只读投影，用于统计与难度自适应。
type TaskHistoryRecord struct {
	Date       string
	TaskID     string
	Type       TaskType
	Difficulty Difficulty
	Status     string
	Score      int
}

// History 返回最近 limit 天的任务历史，按日期倒序。
func (s *DailyTaskService) History(userID uint, limit int) ([]TaskHistoryRecord, error) {
	if limit <= 0 {
		limit = 30
	}

	var progresses []db.DailyTaskProgress
	if err := s.db.Where("user_id = ?", userID).
		Order("date DESC").Limit(limit).
		Find(&progresses).Error; err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	ids := make([]string, 0)
	for _, progress := range progresses {
		ids = append(ids, progress.TaskIDs...)
	}

	taskIndex, err := s.taskIndex(ids)
	if err != nil {
		return nil, err
	}

	records := make([]TaskHistoryRecord, 0)
	for _, progress := range progresses {
		for _, id := range progress.CompletedIDs {
			record := TaskHistoryRecord{Date: progress.Date, TaskID: id, Status: "completed", Score: progress.Scores[id]}
			if task, ok := taskIndex[id]; ok {
				record.Type = TaskType(task.Type)
				record.Difficulty = Difficulty(task.Difficulty)
			}
			records = append(records, record)
		}
		for _, id := range progress.SkippedIDs {
			record := TaskHistoryRecord{Date: progress.Date, TaskID: id, Status: "skipped"}
			if task, ok := taskIndex[id]; ok {
				record.Type = TaskType(task.Type)
				record.Difficulty = Difficulty(task.Difficulty)
			}
			records = append(records, record)
		}
	}

	return records, nil
}

// DailyStats 汇总用户的修身统计。
type DailyStats struct {
	TotalCompleted   int
	TotalSkipped     int
	TotalXPEarned    int
	CurrentStreak    int
	LongestStreak    int
	Level            int
	TotalXP          int
	CategoryAverages map[TaskType]float64
}

// Stats 返回用户的累计统计与各类别平均分。
func (s *DailyTaskService) Stats(userID uint) (*DailyStats, error) {
	user, err := s.users.Get(userID)
	if err != nil {
		return nil, err
	}

	records, err := s.History(userID, statsWindowDays)
	if err != nil {
		return nil, err
	}

	stats := &DailyStats{
		CurrentStreak:    user.CurrentStreak,
		LongestStreak:    user.LongestStreak,
		Level:            user.Level,
		TotalXP:          user.TotalXP,
		CategoryAverages: map[TaskType]float64{},
	}

	sums := map[TaskType]int{}
	counts := map[TaskType]int{}
	for _, record := range records {
		switch record.Status {
		case "completed":
			stats.TotalCompleted++
			if record.Type.IsValid() {
				sums[record.Type] += record.Score
				counts[record.Type]++
			}
		case "skipped":
			stats.TotalSkipped++
		}
	}

	// 经验总和与完成数使用同一个窗口，避免两项统计互相矛盾
	var progresses []db.DailyTaskProgress
	if err := s.db.Where("user_id = ?", userID).
		Order("date DESC").Limit(statsWindowDays).
		Find(&progresses).Error; err != nil {
		return nil, fmt.Errorf("sum xp: %w", err)
	}
	for _, progress := range progresses {
		stats.TotalXPEarned += progress.XPEarned
	}

	for taskType, sum := range sums {
		stats.CategoryAverages[taskType] = float64(sum) / float64(counts[taskType])
	}

	return stats, nil
}

// categoryState 返回某类别按时间从旧到新的完成得分，以及最近一次完成的难度。
// 逐日倒序取窗口，再从最旧的一天起按当日提交顺序展开，
// 保证“最近 N 次”规则看到的顺序与实际提交顺序一致。
// 该类别没有完成记录时难度为空值，由调用方退回等级基准。
func (s *DailyTaskService) categoryState(userID uint, taskType TaskType) ([]int, Difficulty, error) {
	var progresses []db.DailyTaskProgress
	if err := s.db.Where("user_id = ?", userID).
		Order("date DESC").Limit(adaptHistoryDays).
		Find(&progresses).Error; err != nil {
		return nil, "", fmt.Errorf("list progress: %w", err)
	}

	ids := make([]string, 0)
	for _, progress := range progresses {
		ids = append(ids, progress.CompletedIDs...)
	}
	taskIndex, err := s.taskIndex(ids)
	if err != nil {
		return nil, "", err
	}

	scores := make([]int, 0)
	var last Difficulty
	for i := len(progresses) - 1; i >= 0; i-- {
		progress := progresses[i]
		for _, id := range progress.CompletedIDs {
			task, ok := taskIndex[id]
			if !ok || TaskType(task.Type) != taskType {
				continue
			}
			scores = append(scores, progress.Scores[id])
			last = Difficulty(task.Difficulty)
		}
	}
	return scores, last, nil
}

// consumedSources 返回用户已消费过的全部内容来源。
func (s *DailyTaskService) consumedSources(userID uint) (map[string]bool, error) {
	var consumptions []db.SourceConsumption
	if err := s.db.Where("user_id = ?", userID).Find(&consumptions).Error; err != nil {
		return nil, fmt.Errorf("list consumed sources: %w", err)
	}

	used := make(map[string]bool, len(consumptions))
	for _, consumption := range consumptions {
		used[consumption.SourceID] = true
	}
	return used, nil
}

func (s *DailyTaskService) todayProgress(userID uint) (*db.DailyTaskProgress, error) {
	var progress db.DailyTaskProgress
	if err := s.db.Where("user_id = ? AND date = ?", userID, s.today()).First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoProgressToday
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return &progress, nil
}

func (s *DailyTaskService) tasksByIDs(ids []string) ([]db.DailyTask, error) {
	index, err := s.taskIndex(ids)
	if err != nil {
		return nil, err
	}

	tasks := make([]db.DailyTask, 0, len(ids))
	for _, id := range ids {
		if task, ok := index[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (s *DailyTaskService) taskIndex(ids []string) (map[string]db.DailyTask, error) {
	index := map[string]db.DailyTask{}
	if len(ids) == 0 {
		return index, nil
	}

	var tasks []db.DailyTask
	if err := s.db.Where("task_id IN ?", ids).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, task := range tasks {
		index[task.TaskID] = task
	}
	return index, nil
}

func (s *DailyTaskService) today() string {
	return s.now().Format(progressDateFormat)
}

func (s *DailyTaskService) todayDate() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xiushen/internal/cache"
	"github.com/xiushen/internal/db"
)

func setupTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(
		&db.User{},
		&db.Chapter{},
		&db.DailyTask{},
		&db.DailyTaskProgress{},
		&db.SourceConsumption{},
		&db.SystemSetting{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func newTestDailyService(t *testing.T, store cache.Store) (*DailyTaskService, *db.User) {
	t.Helper()

	users := NewUserService(db.DB)
	user, err := users.Register("daiyu", "secret123")
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	settings := NewSystemSettingService(db.DB)
	svc := NewDailyTaskService(db.DB, settings, store)
	return svc, user
}

// 没有配置 API Key 时生成全部走确定性模板，不需要网络。

func TestTodayCreatesProgressOnce(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	progress, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}
	if len(tasks) != 3 || len(progress.TaskIDs) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	for _, task := range tasks {
		if task.Title == "" || task.Description == "" {
			t.Fatalf("task content should never be empty: %+v", task)
		}
		if task.Difficulty != string(DifficultyEasy) {
			t.Fatalf("level-1 user should get easy tasks, got %s", task.Difficulty)
		}
		if _, err := ParseTaskID(task.TaskID); err != nil {
			t.Fatalf("generated task id should parse: %v", err)
		}
	}

	// 再次调用返回同一条记录与同一批任务
	again, tasksAgain, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("second Today returned error: %v", err)
	}
	if again.ID != progress.ID {
		t.Fatal("progress record must not be recreated for the same day")
	}
	if len(tasksAgain) != 3 || tasksAgain[0].TaskID != tasks[0].TaskID {
		t.Fatal("expected the same task assignments on repeat call")
	}

	var count int64
	if err := db.DB.Model(&db.DailyTaskProgress{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count progress: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one progress row, got %d", count)
	}
}

func TestSubmitScoresAndAwardsXP(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	task := tasks[0]
	answer := repeatRunes("宝玉与黛玉初见时的心照不宣写得极动人值得再三回味", 60)

	result, err := svc.Submit(ctx, user.ID, task.TaskID, answer)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	if result.Score != ScorePass {
		t.Fatalf("expected pass score, got %d", result.Score)
	}
	wantXP := TaskXP(TaskType(task.Type), Difficulty(task.Difficulty), ScorePass)
	if result.XPEarned != wantXP || result.StreakBonus != 0 {
		t.Fatalf("unexpected xp: %+v (want %d)", result, wantXP)
	}
	if result.Feedback.Text == "" {
		t.Fatal("feedback must never be empty")
	}

	// 用户累计经验入账
	updated, err := NewUserService(db.DB).Get(user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if updated.TotalXP != wantXP {
		t.Fatalf("expected user xp %d, got %d", wantXP, updated.TotalXP)
	}

	// 属性点尽力而为地入账
	rewards := AttributeRewards(TaskType(task.Type))
	for name, points := range rewards {
		if updated.Attributes[name] != points {
			t.Fatalf("expected attribute %s=%d, got %v", name, points, updated.Attributes)
		}
	}

	// 已完成任务不能重复提交
	if _, err := svc.Submit(ctx, user.ID, task.TaskID, answer); !errors.Is(err, ErrTaskAlreadyCompleted) {
		t.Fatalf("expected ErrTaskAlreadyCompleted, got %v", err)
	}
}

func TestSubmitFailTierYieldsNoXP(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	result, err := svc.Submit(ctx, user.ID, tasks[0].TaskID, "12345")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.Score != ScoreFail || result.XPEarned != 0 {
		t.Fatalf("digits-only answer should score 20 with 0 xp, got %+v", result)
	}

	updated, _ := NewUserService(db.DB).Get(user.ID)
	if updated.TotalXP != 0 {
		t.Fatalf("expected no xp, got %d", updated.TotalXP)
	}
	if len(updated.Attributes) != 0 {
		t.Fatalf("failed answer should not award attributes: %v", updated.Attributes)
	}
}

func TestSubmitValidation(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	if _, _, err := svc.Today(ctx, user.ID); err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	// 畸形 ID 直接拒绝，不做猜测恢复
	if _, err := svc.Submit(ctx, user.ID, "reading_easy_oops", "回答"); !errors.Is(err, ErrInvalidTaskID) {
		t.Fatalf("expected ErrInvalidTaskID, got %v", err)
	}

	// 格式合法但不在今日任务单中
	stray := NewTaskID(TaskTypeReading, DifficultyEasy, time.Now(), time.Now()).String()
	if _, err := svc.Submit(ctx, user.ID, stray, "回答"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSubmitCooldown(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	store := cache.NewMemoryStore()
	svc, user := newTestDailyService(t, store)
	ctx := context.Background()

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	answer := repeatRunes("冷子兴演说荣国府一节铺陈家族脉络实为全书纲目", 50)
	if _, err := svc.Submit(ctx, user.ID, tasks[0].TaskID, answer); err != nil {
		t.Fatalf("first submit should pass: %v", err)
	}

	// 5 秒冷却内的第二次提交被拒绝
	if _, err := svc.Submit(ctx, user.ID, tasks[1].TaskID, answer); !errors.Is(err, ErrSubmitTooFrequent) {
		t.Fatalf("expected ErrSubmitTooFrequent, got %v", err)
	}
}

func TestSourceConsumedOncePerUser(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	now := time.Now()
	taskID := NewTaskID(TaskTypeReading, DifficultyEasy, now, now).String()
	task := db.DailyTask{
		TaskID:     taskID,
		UserID:     user.ID,
		Type:       string(TaskTypeReading),
		Difficulty: string(DifficultyEasy),
		Title:      "研读原文",
		PassScore:  ScorePass,
		SourceID:   "chapter:9:9",
	}
	if err := db.DB.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	progress := db.DailyTaskProgress{
		UserID:  user.ID,
		Date:    now.Format("2006-01-02"),
		TaskIDs: []string{taskID},
	}
	if err := db.DB.Create(&progress).Error; err != nil {
		t.Fatalf("create progress: %v", err)
	}

	// 该来源此前已在别处领过奖励
	if err := db.DB.Create(&db.SourceConsumption{UserID: user.ID, SourceID: "chapter:9:9"}).Error; err != nil {
		t.Fatalf("create consumption: %v", err)
	}

	answer := repeatRunes("贾府的兴衰在这一段里已经埋下伏笔读来令人唏嘘不已", 50)
	if _, err := svc.Submit(ctx, user.ID, taskID, answer); !errors.Is(err, ErrSourceConsumed) {
		t.Fatalf("expected ErrSourceConsumed, got %v", err)
	}
}

func TestSkipAndStreakRollUp(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.Local)
	svc.SetClock(func() time.Time { return day1 })

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	answer := repeatRunes("黛玉葬花一节情景交融读来满纸幽怨令人不忍释卷", 50)

	// 完成两个，跳过一个：当日收官，连胜从 1 起算
	if _, err := svc.Submit(ctx, user.ID, tasks[0].TaskID, answer); err != nil {
		t.Fatalf("submit task 0: %v", err)
	}
	if _, err := svc.Submit(ctx, user.ID, tasks[1].TaskID, answer); err != nil {
		t.Fatalf("submit task 1: %v", err)
	}

	progress, err := svc.Skip(ctx, user.ID, tasks[2].TaskID)
	if err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if progress.CompletedAt == nil {
		t.Fatal("day should be complete after last skip")
	}
	if progress.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", progress.Streak)
	}

	// 已跳过的任务不能再提交
	if _, err := svc.Submit(ctx, user.ID, tasks[2].TaskID, answer); !errors.Is(err, ErrTaskAlreadySkipped) {
		t.Fatalf("expected ErrTaskAlreadySkipped, got %v", err)
	}

	// 次日完成全部任务，连胜累进到 2
	day2 := day1.AddDate(0, 0, 1)
	svc.SetClock(func() time.Time { return day2 })

	_, tasks2, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("day-2 Today returned error: %v", err)
	}

	var last *SubmitResult
	for _, task := range tasks2 {
		result, err := svc.Submit(ctx, user.ID, task.TaskID, answer)
		if err != nil {
			t.Fatalf("day-2 submit: %v", err)
		}
		last = result
	}
	if !last.DayComplete {
		t.Fatal("expected day complete after last submission")
	}
	if last.Streak != 2 {
		t.Fatalf("expected streak 2, got %d", last.Streak)
	}

	// 隔一天未完成后连胜重置
	day4 := day2.AddDate(0, 0, 2)
	svc.SetClock(func() time.Time { return day4 })

	_, tasks4, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("day-4 Today returned error: %v", err)
	}
	for _, task := range tasks4 {
		if _, err := svc.Skip(ctx, user.ID, task.TaskID); err != nil {
			t.Fatalf("day-4 skip: %v", err)
		}
	}

	updated, _ := NewUserService(db.DB).Get(user.ID)
	if updated.CurrentStreak != 1 {
		t.Fatalf("expected streak reset to 1 after a missed day, got %d", updated.CurrentStreak)
	}
	if updated.LongestStreak != 2 {
		t.Fatalf("expected longest streak 2, got %d", updated.LongestStreak)
	}
}

func TestSubmitRecordsModelFeedback(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	settings := NewSystemSettingService(db.DB)
	enableOpenAI(t, settings)

	// 模型输出不是任务 JSON：生成走模板兜底，点评则原样采用
	doer := &fakeAIDoer{content: "**这段解读很见功力**，建议再对照脂批读一遍。"}
	svc.Generator().SetHTTPClient(doer)
	svc.FeedbackService().SetHTTPClient(doer)

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	answer := repeatRunes("宝钗扑蝶一节把人物的机变与矜持写在同一个动作里", 50)
	result, err := svc.Submit(ctx, user.ID, tasks[0].TaskID, answer)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.Feedback.Text != doer.content {
		t.Fatalf("expected model feedback, got %q", result.Feedback.Text)
	}

	// 点评写回当日进度记录
	progress, err := svc.todayProgress(user.ID)
	if err != nil {
		t.Fatalf("reload progress: %v", err)
	}
	if progress.Feedback[tasks[0].TaskID] != doer.content {
		t.Fatalf("feedback should be persisted, got %q", progress.Feedback[tasks[0].TaskID])
	}
}

func TestCategoryStateOrderAndAnchor(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)

	day1 := time.Date(2026, 8, 20, 9, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)

	makeTask := func(taskType TaskType, difficulty Difficulty, day time.Time) string {
		id := NewTaskID(taskType, difficulty, day, day).String()
		task := db.DailyTask{
			TaskID:     id,
			UserID:     user.ID,
			Type:       string(taskType),
			Difficulty: string(difficulty),
			PassScore:  ScorePass,
		}
		if err := db.DB.Create(&task).Error; err != nil {
			t.Fatalf("create task: %v", err)
		}
		return id
	}

	// 第一天先 90 后 40 提交两个研读任务，另有一个感悟任务混入
	t1 := makeTask(TaskTypeReading, DifficultyEasy, day1)
	t2 := makeTask(TaskTypeReading, DifficultyEasy, day1)
	t3 := makeTask(TaskTypeReflection, DifficultyEasy, day1)
	if err := db.DB.Create(&db.DailyTaskProgress{
		UserID:       user.ID,
		Date:         day1.Format("2006-01-02"),
		TaskIDs:      []string{t1, t2, t3},
		CompletedIDs: []string{t1, t2, t3},
		Scores:       map[string]int{t1: 90, t2: 40, t3: 100},
	}).Error; err != nil {
		t.Fatalf("create day-1 progress: %v", err)
	}

	// 第二天完成一个中等难度的研读任务
	t4 := makeTask(TaskTypeReading, DifficultyMedium, day2)
	if err := db.DB.Create(&db.DailyTaskProgress{
		UserID:       user.ID,
		Date:         day2.Format("2006-01-02"),
		TaskIDs:      []string{t4},
		CompletedIDs: []string{t4},
		Scores:       map[string]int{t4: 95},
	}).Error; err != nil {
		t.Fatalf("create day-2 progress: %v", err)
	}

	scores, last, err := svc.categoryState(user.ID, TaskTypeReading)
	if err != nil {
		t.Fatalf("categoryState returned error: %v", err)
	}

	// 得分从旧到新，且同一天内保持提交顺序
	want := []int{90, 40, 95}
	if len(scores) != len(want) {
		t.Fatalf("expected %d scores, got %v", len(want), scores)
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("expected scores %v, got %v", want, scores)
		}
	}

	// 难度基准取该类别最近一次完成的难度，升档可在此之上累进
	if last != DifficultyMedium {
		t.Fatalf("expected anchor difficulty medium, got %s", last)
	}

	// 没有记录的类别没有基准，由等级规则兜底
	_, none, err := svc.categoryState(user.ID, TaskTypeRecitation)
	if err != nil {
		t.Fatalf("categoryState returned error: %v", err)
	}
	if none != "" {
		t.Fatalf("expected empty anchor for unseen category, got %s", none)
	}
	if got := RecommendDifficulty(none, nil, 1); got != DifficultyEasy {
		t.Fatalf("expected level fallback easy, got %s", got)
	}
}

func TestHistoryAndStats(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	svc, user := newTestDailyService(t, nil)
	ctx := context.Background()

	_, tasks, err := svc.Today(ctx, user.ID)
	if err != nil {
		t.Fatalf("Today returned error: %v", err)
	}

	answer := repeatRunes("刘姥姥进大观园的对照笔法把贫富悬殊写得入木三分", 50)
	result, err := svc.Submit(ctx, user.ID, tasks[0].TaskID, answer)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Skip(ctx, user.ID, tasks[1].TaskID); err != nil {
		t.Fatalf("skip: %v", err)
	}

	records, err := svc.History(user.ID, 10)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(records))
	}

	var completed, skipped int
	for _, record := range records {
		switch record.Status {
		case "completed":
			completed++
			if record.Score != ScorePass {
				t.Fatalf("unexpected score in history: %d", record.Score)
			}
			if !record.Type.IsValid() {
				t.Fatalf("history record should carry task type, got %q", record.Type)
			}
		case "skipped":
			skipped++
		}
	}
	if completed != 1 || skipped != 1 {
		t.Fatalf("unexpected history breakdown: completed=%d skipped=%d", completed, skipped)
	}

	stats, err := svc.Stats(user.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.TotalCompleted != 1 || stats.TotalSkipped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// 完成数与经验总和出自同一窗口，应当彼此一致
	if stats.TotalXPEarned != result.XPEarned {
		t.Fatalf("expected xp sum %d, got %d", result.XPEarned, stats.TotalXPEarned)
	}
	avg, ok := stats.CategoryAverages[TaskType(tasks[0].Type)]
	if !ok || avg != float64(ScorePass) {
		t.Fatalf("expected category average %d, got %v", ScorePass, stats.CategoryAverages)
	}
}

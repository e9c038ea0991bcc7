package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/service"
)

type taskPayload struct {
	TaskID           string         `json:"task_id"`
	Type             string         `json:"type"`
	Difficulty       string         `json:"difficulty"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	XPReward         int            `json:"xp_reward"`
	AttributeRewards map[string]int `json:"attribute_rewards"`
	Content          map[string]any `json:"content"`
	Completed        bool           `json:"completed"`
	Skipped          bool           `json:"skipped"`
	Score            int            `json:"score,omitempty"`
	Feedback         string         `json:"feedback,omitempty"`
}

type submitPayload struct {
	Answer string `json:"answer"`
}

// GetToday 返回当日任务单与进度，首次访问时生成任务。
func (a *API) GetToday(c *gin.Context) {
	userID, _ := currentUserID(c)

	progress, tasks, err := a.daily.Today(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取今日任务失败")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"date":     progress.Date,
		"tasks":    tasksToPayload(progress, tasks),
		"xp":       progress.XPEarned,
		"streak":   progress.Streak,
		"complete": progress.CompletedAt != nil,
	})
}

// SubmitTask 提交任务作答，返回得分、经验与点评。
func (a *API) SubmitTask(c *gin.Context) {
	userID, _ := currentUserID(c)
	taskID := c.Param("id")

	var payload submitPayload
	if !bindJSON(c, &payload, "请求体格式错误") {
		return
	}

	result, err := a.daily.Submit(c.Request.Context(), userID, taskID, payload.Answer)
	if err != nil {
		handleDailyError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"task_id":       result.TaskID,
		"score":         result.Score,
		"xp":            result.XPEarned,
		"base_xp":       result.BaseXP,
		"streak_bonus":  result.StreakBonus,
		"streak":        result.Streak,
		"day_complete":  result.DayComplete,
		"feedback":      result.Feedback.Text,
		"feedback_html": result.Feedback.HTML,
	})
}

// SkipTask 跳过一个任务。
func (a *API) SkipTask(c *gin.Context) {
	userID, _ := currentUserID(c)

	progress, err := a.daily.Skip(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleDailyError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"skipped":      progress.SkippedIDs,
		"day_complete": progress.CompletedAt != nil,
		"streak":       progress.Streak,
	})
}

// GetHistory 返回最近的任务历史记录。
func (a *API) GetHistory(c *gin.Context) {
	userID, _ := currentUserID(c)

	limit := 30
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 365 {
			limit = parsed
		}
	}

	records, err := a.daily.History(userID, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取历史记录失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, record := range records {
		items = append(items, gin.H{
			"date":       record.Date,
			"task_id":    record.TaskID,
			"type":       record.Type,
			"difficulty": record.Difficulty,
			"status":     record.Status,
			"score":      record.Score,
		})
	}

	respondSuccess(c, http.StatusOK, gin.H{"records": items})
}

// GetStats 返回累计统计与各类别平均分。
func (a *API) GetStats(c *gin.Context) {
	userID, _ := currentUserID(c)

	stats, err := a.daily.Stats(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取统计失败")
		return
	}

	averages := gin.H{}
	for taskType, avg := range stats.CategoryAverages {
		averages[string(taskType)] = avg
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"total_completed":   stats.TotalCompleted,
		"total_skipped":     stats.TotalSkipped,
		"total_xp_earned":   stats.TotalXPEarned,
		"current_streak":    stats.CurrentStreak,
		"longest_streak":    stats.LongestStreak,
		"level":             stats.Level,
		"total_xp":          stats.TotalXP,
		"category_averages": averages,
	})
}

func tasksToPayload(progress *db.DailyTaskProgress, tasks []db.DailyTask) []taskPayload {
	completed := map[string]bool{}
	for _, id := range progress.CompletedIDs {
		completed[id] = true
	}
	skipped := map[string]bool{}
	for _, id := range progress.SkippedIDs {
		skipped[id] = true
	}

	items := make([]taskPayload, 0, len(tasks))
	for _, task := range tasks {
		item := taskPayload{
			TaskID:           task.TaskID,
			Type:             task.Type,
			Difficulty:       task.Difficulty,
			Title:            task.Title,
			Description:      task.Description,
			EstimatedMinutes: task.EstimatedMinutes,
			XPReward:         task.XPReward,
			AttributeRewards: task.AttributeRewards,
			Content:          task.Content,
			Completed:        completed[task.TaskID],
			Skipped:          skipped[task.TaskID],
		}
		if item.Completed {
			item.Score = progress.Scores[task.TaskID]
			item.Feedback = progress.Feedback[task.TaskID]
		}
		items = append(items, item)
	}
	return items
}

// handleDailyError 把服务层错误映射为合适的状态码与中文提示。
func handleDailyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTaskID):
		respondError(c, http.StatusBadRequest, "任务 ID 格式不正确")
	case errors.Is(err, service.ErrTaskNotFound):
		respondError(c, http.StatusNotFound, "任务不在今日任务单中")
	case errors.Is(err, service.ErrTaskAlreadyCompleted):
		respondError(c, http.StatusConflict, "任务已完成，不能重复提交")
	case errors.Is(err, service.ErrTaskAlreadySkipped):
		respondError(c, http.StatusConflict, "任务已跳过")
	case errors.Is(err, service.ErrSubmitTooFrequent):
		respondError(c, http.StatusTooManyRequests, "提交过于频繁，请稍候再试")
	case errors.Is(err, service.ErrSourceConsumed):
		respondError(c, http.StatusConflict, "该内容已获得过奖励")
	case errors.Is(err, service.ErrNoProgressToday):
		respondError(c, http.StatusNotFound, "请先获取今日任务")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败，请稍后再试")
	}
}

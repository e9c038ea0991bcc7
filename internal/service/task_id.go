package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 任务 ID 采用显式带版本的格式，取代旧实现中靠正则“抢救”畸形 ID 的做法：
//
//	v1_<type>_<difficulty>_<YYYYMMDD>_<rand8>_<unixts>
//
// 各段均为必填，解析失败即报错，不做猜测恢复。
const (
	taskIDVersion  = "v1"
	taskIDSegments = 6
	taskIDDateFmt  = "20060102"
)

// ErrInvalidTaskID 表示任务 ID 不符合当前版本格式
var ErrInvalidTaskID = errors.New("invalid task id")

// TaskID 是解析后的任务标识
type TaskID struct {
	Type       TaskType
	Difficulty Difficulty
	Date       time.Time
	Random     string
	IssuedAt   time.Time
}

// NewTaskID 生成指定日期的任务 ID，随机段取 UUID 前 8 位。
func NewTaskID(taskType TaskType, difficulty Difficulty, date, issuedAt time.Time) TaskID {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return TaskID{
		Type:       taskType,
		Difficulty: difficulty,
		Date:       date,
		Random:     random,
		IssuedAt:   issuedAt,
	}
}

// String 输出规范的字符串形式。
func (id TaskID) String() string {
	return strings.Join([]string{
		taskIDVersion,
		string(id.Type),
		string(id.Difficulty),
		id.Date.Format(taskIDDateFmt),
		id.Random,
		strconv.FormatInt(id.IssuedAt.Unix(), 10),
	}, "_")
}

// ParseTaskID 严格解析任务 ID，任何段不合法都返回 ErrInvalidTaskID。
func ParseTaskID(raw string) (TaskID, error) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != taskIDSegments {
		return TaskID{}, fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidTaskID, taskIDSegments, len(parts))
	}

	if parts[0] != taskIDVersion {
		return TaskID{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidTaskID, parts[0])
	}

	taskType := TaskType(parts[1])
	if !taskType.IsValid() {
		return TaskID{}, fmt.Errorf("%w: unknown type %q", ErrInvalidTaskID, parts[1])
	}

	difficulty := Difficulty(parts[2])
	if !difficulty.IsValid() {
		return TaskID{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidTaskID, parts[2])
	}

	date, err := time.ParseInLocation(taskIDDateFmt, parts[3], time.Local)
	if err != nil {
		return TaskID{}, fmt.Errorf("%w: bad date %q", ErrInvalidTaskID, parts[3])
	}

	if len(parts[4]) != 8 {
		return TaskID{}, fmt.Errorf("%w: bad random segment %q", ErrInvalidTaskID, parts[4])
	}

	unix, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil || unix <= 0 {
		return TaskID{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidTaskID, parts[5])
	}

	return TaskID{
		Type:       taskType,
		Difficulty: difficulty,
		Date:       date,
		Random:     parts[4],
		IssuedAt:   time.Unix(unix, 0),
	}, nil
}

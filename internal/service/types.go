package service

// TaskType 表示修身任务的类别
type TaskType string

const (
	// TaskTypeReading 研读原文：围绕章回段落的理解题
	TaskTypeReading TaskType = "reading"
	// TaskTypeAppreciation 诗词鉴赏：品评书中诗词曲赋
	TaskTypeAppreciation TaskType = "appreciation"
	// TaskTypeReflection 感悟笔记：就主题写自由感想
	TaskTypeReflection TaskType = "reflection"
	// TaskTypeRecitation 摘抄背诵：默写或摘抄指定段落
	TaskTypeRecitation TaskType = "recitation"
)

// AllTaskTypes 按固定顺序列出全部任务类别
var AllTaskTypes = []TaskType{TaskTypeReading, TaskTypeAppreciation, TaskTypeReflection, TaskTypeRecitation}

// IsValid 判断任务类别是否受支持
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeReading, TaskTypeAppreciation, TaskTypeReflection, TaskTypeRecitation:
		return true
	default:
		return false
	}
}

// Difficulty 表示任务难度档位
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid 判断难度是否受支持
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Raise 返回上调一档后的难度，已是 hard 时保持不变
func (d Difficulty) Raise() Difficulty {
	switch d {
	case DifficultyEasy:
		return DifficultyMedium
	case DifficultyMedium:
		return DifficultyHard
	default:
		return DifficultyHard
	}
}

// Lower 返回下调一档后的难度，已是 easy 时保持不变
func (d Difficulty) Lower() Difficulty {
	switch d {
	case DifficultyHard:
		return DifficultyMedium
	case DifficultyMedium:
		return DifficultyEasy
	default:
		return DifficultyEasy
	}
}

// 属性名常量，对应用户修身属性点
const (
	AttributeScholarship = "scholarship" // 学识
	AttributeInsight     = "insight"     // 悟性
	AttributeLiterary    = "literary"    // 文采
	AttributeVirtue      = "virtue"      // 德行
)

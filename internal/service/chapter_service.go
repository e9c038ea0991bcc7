package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/logger"
)

// ErrChapterNotFound 在指定章回不存在时返回
var ErrChapterNotFound = errors.New("chapter not found")

// ErrNoChapters 在章回库为空时返回
var ErrNoChapters = errors.New("no chapters loaded")

// ChapterService 负责章回正文的导入与取用
type ChapterService struct {
	db *gorm.DB
}

// NewChapterService 构造 ChapterService
func NewChapterService(gdb *gorm.DB) *ChapterService {
	return &ChapterService{db: gdb}
}

// chapterFile 对应章回转换脚本输出的 JSON 结构
type chapterFile struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	TitleText  string `json:"titleText"`
	Paragraphs []struct {
		Content []string `json:"content"`
	} `json:"paragraphs"`
}

// LoadDir 导入目录下的章回 JSON 文件，按回数幂等覆盖，返回导入条数。
// 目录不存在视为未配置章回数据，不算错误。
func (s *ChapterService) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("chapter dir %s not found, skip loading", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("read chapter dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("read chapter file %s: %w", entry.Name(), err)
		}

		var file chapterFile
		if err := json.Unmarshal(raw, &file); err != nil {
			logger.Warnf("skip malformed chapter file %s: %v", entry.Name(), err)
			continue
		}
		if file.ID <= 0 {
			logger.Warnf("skip chapter file %s: missing id", entry.Name())
			continue
		}

		paragraphs := make([]string, 0, len(file.Paragraphs))
		for _, p := range file.Paragraphs {
			text := strings.TrimSpace(strings.Join(p.Content, "\n"))
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
		}

		record := db.Chapter{
			Number:     file.ID,
			Title:      strings.TrimSpace(file.Title),
			TitleText:  strings.TrimSpace(file.TitleText),
			Paragraphs: paragraphs,
		}
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "number"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "title_text", "paragraphs", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return loaded, fmt.Errorf("save chapter %d: %w", file.ID, err)
		}
		loaded++
	}

	return loaded, nil
}

// Get 按回数获取章回
func (s *ChapterService) Get(number int) (*db.Chapter, error) {
	var chapter db.Chapter
	if err := s.db.Where("number = ?", number).First(&chapter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChapterNotFound
		}
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return &chapter, nil
}

// Count 返回已导入的章回数量
func (s *ChapterService) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&db.Chapter{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return count, nil
}

// Passage 表示选中的一段原文及其出处标识
type Passage struct {
	ChapterNumber  int
	ChapterTitle   string
	ParagraphIndex int
	Text           string
	SourceID       string
}

// RandomPassage 随机选取一段章回原文，库为空时返回 ErrNoChapters。
func (s *ChapterService) RandomPassage(rng *rand.Rand) (*Passage, error) {
	var chapters []db.Chapter
	if err := s.db.Find(&chapters).Error; err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	candidates := chapters[:0]
	for _, chapter := range chapters {
		if len(chapter.Paragraphs) > 0 {
			candidates = append(candidates, chapter)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoChapters
	}

	chapter := candidates[rng.Intn(len(candidates))]
	index := rng.Intn(len(chapter.Paragraphs))

	return &Passage{
		ChapterNumber:  chapter.Number,
		ChapterTitle:   chapter.Title,
		ParagraphIndex: index,
		Text:           chapter.Paragraphs[index],
		SourceID:       fmt.Sprintf("chapter:%d:%d", chapter.Number, index),
	}, nil
}

package db

import "gorm.io/gorm"

// Chapter 存储红楼梦章回正文
// Number 为回数（1-120），Paragraphs 以 JSON 数组存储段落文本
// Title 为完整回目（如「第一回 甄士隐梦幻识通灵 贾雨村风尘怀闺秀」），TitleText 为去掉序数的对句
type Chapter struct {
	gorm.Model
	Number     int `gorm:"uniqueIndex"`
	Title      string
	TitleText  string
	Paragraphs []string `gorm:"serializer:json"`
}

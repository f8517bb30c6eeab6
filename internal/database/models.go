package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string     `gorm:"uniqueIndex;size:64"`
	PasswordHash string     `gorm:"size:255"`
	Campaigns    []Campaign `gorm:"constraint:OnDelete:CASCADE"`
	Templates    []Template `gorm:"constraint:OnDelete:CASCADE"`
}

// Template 表示可复用的明信片设计模板。
// Content 是画布文档 JSON（对象列表 + 元数据）。
type Template struct {
	gorm.Model
	Title           string         `gorm:"size:255"`
	PreviewImageURL string         `gorm:"size:512"`
	Content         datatypes.JSON `gorm:"type:jsonb"`
	FormatKey       string         `gorm:"size:32"`
	IsPublic        bool           `gorm:"default:false"`
	UserID          uint           `gorm:"index"`
	User            User           `gorm:"constraint:OnDelete:CASCADE"`
}

// Campaign 表示一次直邮活动。
// Content 是创建时刻的模板快照，后续模板修改不影响已创建的活动。
type Campaign struct {
	gorm.Model
	PublicID       string         `gorm:"uniqueIndex;size:40"` // 对外暴露的活动标识，用于令牌作用域与落地页路径
	Title          string         `gorm:"size:255"`
	Content        datatypes.JSON `gorm:"type:jsonb"`
	FormatKey      string         `gorm:"size:32"`
	Status         string         `gorm:"size:32"` // draft / processing / completed / failed
	ArtifactPrefix string         `gorm:"size:512"`
	CompletedCount int
	FailedCount    int
	UserID         uint `gorm:"index"`
	User           User `gorm:"constraint:OnDelete:CASCADE"`
}

// BatchJob 记录一次批量个性化任务的输入与结果摘要。
// Rows 保存解析后的 CSV 数据；任务是短暂的，产物入 MinIO。
type BatchJob struct {
	gorm.Model
	CampaignID     uint           `gorm:"index"`
	Campaign       Campaign       `gorm:"constraint:OnDelete:CASCADE"`
	Rows           datatypes.JSON `gorm:"type:jsonb"`
	RowCount       int
	Status         string `gorm:"size:32"` // pending / processing / completed / failed
	CompletedCount int
	FailedCount    int
	ErrorMessage   string `gorm:"size:1024"`
}

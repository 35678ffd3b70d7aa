// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"
)

// FileSnapshot 版本快照中的单个文件
type FileSnapshot struct {
	Path     string   `json:"path"`
	Content  []byte   `json:"content"`
	FileType FileType `json:"file_type"`
	Deleted  bool     `json:"deleted,omitempty"`
}

// Version 不可变的项目版本快照
// 版本号单调递增；创建后快照内容永不修改（追加式历史）。
type Version struct {
	ID           string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID    string         `json:"project_id" gorm:"type:uuid;index:idx_versions_project_seq,unique;not null"`
	Seq          int            `json:"seq" gorm:"index:idx_versions_project_seq,unique;not null"`
	Number       string         `json:"number" gorm:"type:varchar(32);not null"`
	Changelog    string         `json:"changelog" gorm:"type:text"`
	ChangedPaths []string       `json:"changed_paths" gorm:"type:jsonb;serializer:json"`
	Snapshot     []FileSnapshot `json:"snapshot,omitempty" gorm:"type:jsonb;serializer:json"`
	Bookmarked   bool           `json:"bookmarked" gorm:"default:false"`
	CreatedBy    string         `json:"created_by" gorm:"type:varchar(255)"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Version) TableName() string {
	return "versions"
}

// NewVersion 基于上一个版本序号创建下一个版本
// prevSeq 为 0 表示项目还没有版本，此时产生 1.0.0。
func NewVersion(projectID string, prevSeq int, changelog string, changedPaths []string, snapshot []FileSnapshot, createdBy string) *Version {
	seq := prevSeq + 1
	return &Version{
		ProjectID:    projectID,
		Seq:          seq,
		Number:       FormatVersionNumber(seq),
		Changelog:    changelog,
		ChangedPaths: changedPaths,
		Snapshot:     snapshot,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
	}
}

// FormatVersionNumber 序号到 major.minor.patch 的映射
// 目前只自增 patch 位，首个版本为 1.0.0。
func FormatVersionNumber(seq int) string {
	if seq < 1 {
		seq = 1
	}
	return fmt.Sprintf("1.0.%d", seq-1)
}

// ToggleBookmark 切换书签标记
func (v *Version) ToggleBookmark() {
	v.Bookmarked = !v.Bookmarked
}

// HasSnapshot 检查版本是否携带可恢复的完整快照
func (v *Version) HasSnapshot() bool {
	return len(v.Snapshot) > 0
}

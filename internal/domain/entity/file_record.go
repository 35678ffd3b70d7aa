// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// FileType 文件声明类型
type FileType string

const (
	FileTypeMarkup FileType = "markup"
	FileTypeScript FileType = "script"
	FileTypeStyle  FileType = "style"
	FileTypeData   FileType = "data"
)

// FileRecord 项目文件记录
// path 在项目内唯一，写入为 upsert 语义。
type FileRecord struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID string    `json:"project_id" gorm:"type:uuid;index:idx_files_project_path,unique;not null"`
	Path      string    `json:"path" gorm:"type:varchar(512);index:idx_files_project_path,unique;not null"`
	Content   []byte    `json:"content" gorm:"type:bytea"`
	FileType  FileType  `json:"file_type" gorm:"type:varchar(20)"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (FileRecord) TableName() string {
	return "file_records"
}

// NewFileRecord 创建文件记录
func NewFileRecord(projectID, path string, content []byte, fileType FileType) *FileRecord {
	now := time.Now()
	return &FileRecord{
		ProjectID: projectID,
		Path:      path,
		Content:   content,
		FileType:  fileType,
		Size:      int64(len(content)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Replace 原地更新文件内容
func (f *FileRecord) Replace(content []byte, fileType FileType) {
	f.Content = content
	f.FileType = fileType
	f.Size = int64(len(content))
	f.UpdatedAt = time.Now()
}

// DetectFileType 按扩展名推断文件类型
func DetectFileType(path string) FileType {
	switch {
	case strings.HasSuffix(path, ".html"), strings.HasSuffix(path, ".htm"):
		return FileTypeMarkup
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".mjs"),
		strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".jsx"), strings.HasSuffix(path, ".tsx"):
		return FileTypeScript
	case strings.HasSuffix(path, ".css"):
		return FileTypeStyle
	default:
		return FileTypeData
	}
}

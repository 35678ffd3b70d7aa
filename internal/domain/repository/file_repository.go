// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-webforge-api/internal/domain/entity"
)

// FileRepository 项目文件仓储接口
type FileRepository interface {
	// Upsert 按 (project, path) 写入文件：不存在则创建，存在则原地更新
	Upsert(ctx context.Context, file *entity.FileRecord) error

	// GetByPath 根据路径获取文件
	GetByPath(ctx context.Context, projectID, path string) (*entity.FileRecord, error)

	// ListByProject 获取项目全部文件
	ListByProject(ctx context.Context, projectID string) ([]*entity.FileRecord, error)

	// Delete 删除文件
	Delete(ctx context.Context, projectID, path string) error
}

// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-webforge-api/internal/domain/entity"
)

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// Create 创建项目
	Create(ctx context.Context, project *entity.Project) error

	// GetByID 根据 ID 获取项目
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// Update 更新项目
	Update(ctx context.Context, project *entity.Project) error

	// Delete 删除项目（级联删除文件/版本/部署记录）
	Delete(ctx context.Context, id string) error

	// ListByOwner 获取用户项目列表
	ListByOwner(ctx context.Context, ownerID string, pagination Pagination) (*PagedResult[*entity.Project], error)

	// UpdateStatus 更新项目状态
	UpdateStatus(ctx context.Context, id string, status entity.ProjectStatus) error
}

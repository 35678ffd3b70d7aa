// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-webforge-api/internal/domain/entity"
)

// DeploymentRepository 部署记录仓储接口
type DeploymentRepository interface {
	// Upsert 按 (project, environment) 覆盖式写入部署记录
	Upsert(ctx context.Context, record *entity.DeploymentRecord) error

	// Get 获取项目在指定环境的部署记录
	Get(ctx context.Context, projectID string, env entity.Environment) (*entity.DeploymentRecord, error)

	// ListByProject 获取项目全部部署记录
	ListByProject(ctx context.Context, projectID string) ([]*entity.DeploymentRecord, error)
}

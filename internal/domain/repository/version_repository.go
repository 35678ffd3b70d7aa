// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-webforge-api/internal/domain/entity"
)

// VersionRepository 版本仓储接口
type VersionRepository interface {
	// Create 追加一个新版本（历史只增不改）
	Create(ctx context.Context, version *entity.Version) error

	// GetByID 根据 ID 获取版本
	GetByID(ctx context.Context, id string) (*entity.Version, error)

	// GetLatestSeq 获取项目当前最大版本序号，无版本时返回 0
	GetLatestSeq(ctx context.Context, projectID string) (int, error)

	// ListByProject 按序号倒序获取项目版本列表
	ListByProject(ctx context.Context, projectID string, pagination Pagination) (*PagedResult[*entity.Version], error)

	// SetBookmarked 设置书签标记
	SetBookmarked(ctx context.Context, id string, bookmarked bool) error
}

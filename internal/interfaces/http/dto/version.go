// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"z-webforge-api/internal/domain/entity"
)

// VersionResponse 版本响应
// 列表场景不携带快照内容，避免响应体膨胀。
type VersionResponse struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Number       string    `json:"number"`
	Changelog    string    `json:"changelog,omitempty"`
	ChangedPaths []string  `json:"changed_paths,omitempty"`
	FileCount    int       `json:"file_count"`
	Bookmarked   bool      `json:"bookmarked"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToVersionResponse 转换版本实体为响应
func ToVersionResponse(version *entity.Version) *VersionResponse {
	return &VersionResponse{
		ID:           version.ID,
		ProjectID:    version.ProjectID,
		Number:       version.Number,
		Changelog:    version.Changelog,
		ChangedPaths: version.ChangedPaths,
		FileCount:    len(version.Snapshot),
		Bookmarked:   version.Bookmarked,
		CreatedBy:    version.CreatedBy,
		CreatedAt:    version.CreatedAt,
	}
}

// VersionListResponse 版本列表响应
type VersionListResponse struct {
	Versions []*VersionResponse `json:"versions"`
}

// ToVersionListResponse 转换版本列表
func ToVersionListResponse(versions []*entity.Version) *VersionListResponse {
	items := make([]*VersionResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, ToVersionResponse(v))
	}
	return &VersionListResponse{Versions: items}
}

// RestoreRequest 恢复版本请求
type RestoreRequest struct {
	Actor string `json:"actor,omitempty"`
}

// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"z-webforge-api/internal/domain/entity"
)

// FileResponse 文件元信息响应
type FileResponse struct {
	Path      string    `json:"path"`
	FileType  string    `json:"file_type"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToFileResponse 转换文件记录为响应
func ToFileResponse(record *entity.FileRecord) *FileResponse {
	return &FileResponse{
		Path:      record.Path,
		FileType:  string(record.FileType),
		Size:      record.Size,
		UpdatedAt: record.UpdatedAt,
	}
}

// FileListResponse 文件列表响应
type FileListResponse struct {
	Files []*FileResponse `json:"files"`
}

// ToFileListResponse 转换文件列表
func ToFileListResponse(records []*entity.FileRecord) *FileListResponse {
	items := make([]*FileResponse, 0, len(records))
	for _, r := range records {
		items = append(items, ToFileResponse(r))
	}
	return &FileListResponse{Files: items}
}

// FileContentResponse 文件内容响应
type FileContentResponse struct {
	Path     string `json:"path"`
	FileType string `json:"file_type"`
	Content  []byte `json:"content"`
}

// DeploymentResponse 部署记录响应
type DeploymentResponse struct {
	Environment string    `json:"environment"`
	PackageID   string    `json:"package_id,omitempty"`
	URL         string    `json:"url,omitempty"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToDeploymentResponse 转换部署记录为响应
func ToDeploymentResponse(record *entity.DeploymentRecord) *DeploymentResponse {
	return &DeploymentResponse{
		Environment: string(record.Environment),
		PackageID:   record.PackageID,
		URL:         record.URL,
		Status:      string(record.Status),
		UpdatedAt:   record.UpdatedAt,
	}
}

// TriggerDeployRequest 触发异步部署请求
type TriggerDeployRequest struct {
	Actor string `json:"actor"`
}

// DeployJobResponse 异步部署任务受理响应
type DeployJobResponse struct {
	JobID       string `json:"job_id"`
	ProjectID   string `json:"project_id"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
}

// DeploymentListResponse 部署记录列表响应
type DeploymentListResponse struct {
	Deployments []*DeploymentResponse `json:"deployments"`
}

// ToDeploymentListResponse 转换部署记录列表
func ToDeploymentListResponse(records []*entity.DeploymentRecord) *DeploymentListResponse {
	items := make([]*DeploymentResponse, 0, len(records))
	for _, r := range records {
		items = append(items, ToDeploymentResponse(r))
	}
	return &DeploymentListResponse{Deployments: items}
}

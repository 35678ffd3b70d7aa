// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"z-webforge-api/internal/domain/entity"
)

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// ToProjectEntity 转换为项目实体
func (r *CreateProjectRequest) ToProjectEntity() *entity.Project {
	project := entity.NewProject(r.OwnerID, r.Name)
	project.Description = r.Description
	return project
}

// UpdateProjectRequest 更新项目请求
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ApplyToProject 应用更新到项目实体
func (r *UpdateProjectRequest) ApplyToProject(project *entity.Project) {
	if r.Name != nil && *r.Name != "" {
		project.Name = *r.Name
	}
	if r.Description != nil {
		project.Description = *r.Description
	}
	project.UpdatedAt = time.Now()
}

// ProjectResponse 项目响应
type ProjectResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	PreviewURL    string    `json:"preview_url,omitempty"`
	ProductionURL string    `json:"production_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToProjectResponse 转换项目实体为响应
func ToProjectResponse(project *entity.Project) *ProjectResponse {
	return &ProjectResponse{
		ID:            project.ID,
		Name:          project.Name,
		Description:   project.Description,
		Status:        string(project.Status),
		PreviewURL:    project.PreviewURL,
		ProductionURL: project.ProductionURL,
		CreatedAt:     project.CreatedAt,
		UpdatedAt:     project.UpdatedAt,
	}
}

// ProjectListResponse 项目列表响应
type ProjectListResponse struct {
	Projects []*ProjectResponse `json:"projects"`
}

// ToProjectListResponse 转换项目列表
func ToProjectListResponse(projects []*entity.Project) *ProjectListResponse {
	items := make([]*ProjectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, ToProjectResponse(p))
	}
	return &ProjectListResponse{Projects: items}
}

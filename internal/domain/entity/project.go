// Package entity 定义领域实体
package entity

import (
	"time"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusIdle       ProjectStatus = "idle"
	ProjectStatusGenerating ProjectStatus = "generating"
	ProjectStatusDeployed   ProjectStatus = "deployed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// Project Web 应用项目实体
type Project struct {
	ID            string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID       string        `json:"owner_id,omitempty" gorm:"type:uuid;index"`
	Name          string        `json:"name" gorm:"type:varchar(255);not null"`
	Description   string        `json:"description,omitempty" gorm:"type:text"`
	Status        ProjectStatus `json:"status" gorm:"type:varchar(50);default:'idle'"`
	PreviewURL    string        `json:"preview_url,omitempty" gorm:"type:text"`
	ProductionURL string        `json:"production_url,omitempty" gorm:"type:text"`
	CreatedAt     time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// NewProject 创建新项目
func NewProject(ownerID, name string) *Project {
	now := time.Now()
	return &Project{
		OwnerID:   ownerID,
		Name:      name,
		Status:    ProjectStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanStartGeneration 检查项目是否可以开始新的生成会话
func (p *Project) CanStartGeneration() bool {
	return p.Status != ProjectStatusGenerating
}

// MarkGenerating 标记项目进入生成中状态
func (p *Project) MarkGenerating() {
	p.Status = ProjectStatusGenerating
	p.UpdatedAt = time.Now()
}

// MarkDeployed 记录部署结果并回到已部署状态
func (p *Project) MarkDeployed(env Environment, url string) {
	switch env {
	case EnvironmentPreview:
		p.PreviewURL = url
	case EnvironmentProduction:
		p.ProductionURL = url
	}
	p.Status = ProjectStatusDeployed
	p.UpdatedAt = time.Now()
}

// MarkFailed 标记项目生成失败
// 已有的部署 URL 保持不变，线上实例不因失败下线。
func (p *Project) MarkFailed() {
	p.Status = ProjectStatusFailed
	p.UpdatedAt = time.Now()
}

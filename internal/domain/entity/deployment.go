// Package entity 定义领域实体
package entity

import (
	"time"
)

// Environment 部署目标环境
type Environment string

const (
	EnvironmentPreview    Environment = "preview"
	EnvironmentProduction Environment = "production"
)

// DeploymentStatus 部署状态
type DeploymentStatus string

const (
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusDeployed  DeploymentStatus = "deployed"
	DeploymentStatusFailed    DeploymentStatus = "failed"
)

// DeploymentRecord 项目在某个环境的部署记录
// 同一 (project, environment) 的记录被新部署覆盖更新，而非新增。
type DeploymentRecord struct {
	ID          string           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID   string           `json:"project_id" gorm:"type:uuid;index:idx_deployments_project_env,unique;not null"`
	Environment Environment      `json:"environment" gorm:"type:varchar(20);index:idx_deployments_project_env,unique;not null"`
	PackageID   string           `json:"package_id" gorm:"type:varchar(64)"`
	URL         string           `json:"url" gorm:"type:text"`
	Status      DeploymentStatus `json:"status" gorm:"type:varchar(20)"`
	UpdatedAt   time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (DeploymentRecord) TableName() string {
	return "deployment_records"
}

// NewDeploymentRecord 创建部署记录
func NewDeploymentRecord(projectID string, env Environment, packageID string) *DeploymentRecord {
	return &DeploymentRecord{
		ProjectID:   projectID,
		Environment: env,
		PackageID:   packageID,
		Status:      DeploymentStatusDeploying,
		UpdatedAt:   time.Now(),
	}
}

// Succeed 记录部署成功
func (d *DeploymentRecord) Succeed(url string) {
	d.URL = url
	d.Status = DeploymentStatusDeployed
	d.UpdatedAt = time.Now()
}

// Fail 记录部署失败
// URL 保留上一次成功的值，项目不因失败下线。
func (d *DeploymentRecord) Fail() {
	d.Status = DeploymentStatusFailed
	d.UpdatedAt = time.Now()
}

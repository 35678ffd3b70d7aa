// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/internal/interfaces/http/dto"
	"z-webforge-api/pkg/errors"
)

// DeploymentHandler 部署记录处理器
type DeploymentHandler struct {
	deployments repository.DeploymentRepository
	producer    *messaging.Producer
}

// NewDeploymentHandler 创建部署记录处理器
func NewDeploymentHandler(deployments repository.DeploymentRepository, producer *messaging.Producer) *DeploymentHandler {
	return &DeploymentHandler{
		deployments: deployments,
		producer:    producer,
	}
}

// ListDeployments 获取项目部署记录
// 每个环境至多一条记录，反映该环境最近一次部署的结果。
// @Summary 获取项目部署记录
// @Tags Deployments
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.DeploymentListResponse]
// @Router /v1/projects/{pid}/deployments [get]
func (h *DeploymentHandler) ListDeployments(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	records, err := h.deployments.ListByProject(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToDeploymentListResponse(records))
}

// GetDeployment 获取指定环境的部署记录
// @Summary 获取指定环境的部署记录
// @Tags Deployments
// @Produce json
// @Param pid path string true "项目 ID"
// @Param env path string true "环境" Enums(preview, production)
// @Success 200 {object} dto.Response[dto.DeploymentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/deployments/{env} [get]
func (h *DeploymentHandler) GetDeployment(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	env := entity.Environment(c.Param("env"))

	record, err := h.deployments.Get(ctx, projectID, env)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToDeploymentResponse(record))
}

// TriggerDeployment 触发异步部署
// 以项目当前文件集重新构建并发布到目标环境，任务入队后由
// deploy-worker 执行，进度通过项目部署主题的 SSE 推送。
// @Summary 触发异步部署
// @Tags Deployments
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param env path string true "环境" Enums(preview, production)
// @Param body body dto.TriggerDeployRequest false "部署参数"
// @Success 202 {object} dto.Response[dto.DeployJobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/deployments/{env} [post]
func (h *DeploymentHandler) TriggerDeployment(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	env := entity.Environment(c.Param("env"))

	if env != entity.EnvironmentPreview && env != entity.EnvironmentProduction {
		dto.FromAppError(c, errors.ErrInvalidParam.WithDetail("environment must be preview or production"))
		return
	}

	var req dto.TriggerDeployRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job := &messaging.DeployJobMessage{
		JobID:          uuid.NewString(),
		ProjectID:      projectID,
		Environment:    env,
		IdempotencyKey: projectID + ":" + string(env),
	}
	if _, err := h.producer.PublishDeployJob(ctx, job); err != nil {
		dto.FromAppError(c, errors.ErrDeployFailed.WithError(err))
		return
	}

	publishAudit(c, h.producer, &messaging.AuditLogMessage{
		Actor:        req.Actor,
		Action:       "deployment.trigger",
		ResourceType: "deployment",
		ResourceID:   job.JobID,
		ProjectID:    projectID,
		Metadata:     map[string]interface{}{"environment": string(env)},
	})

	dto.Accepted(c, &dto.DeployJobResponse{
		JobID:       job.JobID,
		ProjectID:   projectID,
		Environment: string(env),
		Status:      "queued",
	})
}

// Package handler 提供 HTTP 请求处理器
package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/internal/infrastructure/persistence/redis"
	"z-webforge-api/internal/interfaces/http/dto"
	"z-webforge-api/pkg/logger"
)

const projectCacheTTL = 5 * time.Minute

// ProjectHandler 项目处理器
type ProjectHandler struct {
	projectRepo repository.ProjectRepository
	cache       *redis.Cache
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(projectRepo repository.ProjectRepository, cache *redis.Cache) *ProjectHandler {
	return &ProjectHandler{
		projectRepo: projectRepo,
		cache:       cache,
	}
}

// ListProjects 获取项目列表
// @Summary 获取项目列表
// @Tags Projects
// @Produce json
// @Param owner_id query string false "所有者 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Router /v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()
	pageReq := dto.BindPage(c)
	ownerID := c.Query("owner_id")

	result, err := h.projectRepo.ListByOwner(ctx, ownerID, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list projects", err)
		dto.InternalError(c, "failed to list projects")
		return
	}

	resp := dto.ToProjectListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// CreateProject 创建项目
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body dto.CreateProjectRequest true "项目信息"
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	project := req.ToProjectEntity()
	if err := h.projectRepo.Create(ctx, project); err != nil {
		logger.Error(ctx, "failed to create project", err)
		dto.InternalError(c, "failed to create project")
		return
	}

	dto.Created(c, dto.ToProjectResponse(project))
}

// GetProject 获取项目详情
// @Summary 获取项目详情
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	// Read-Through 缓存：生成会话结束时由编排侧失效
	raw, err := h.cache.GetOrLoadSafe(ctx, redis.BuildProjectKey(projectID), projectCacheTTL, func() (interface{}, error) {
		return h.projectRepo.GetByID(ctx, projectID)
	})
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	var project entity.Project
	if err := json.Unmarshal(raw, &project); err != nil {
		logger.Error(ctx, "failed to decode cached project", err, "project_id", projectID)
		dto.InternalError(c, "failed to get project")
		return
	}

	dto.Success(c, dto.ToProjectResponse(&project))
}

// UpdateProject 更新项目
// @Summary 更新项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param body body dto.UpdateProjectRequest true "更新内容"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [put]
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	project, err := h.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	req.ApplyToProject(project)

	if err := h.projectRepo.Update(ctx, project); err != nil {
		dto.FromAppError(c, err)
		return
	}

	if err := h.cache.InvalidateProject(ctx, projectID); err != nil {
		logger.Warn(ctx, "failed to invalidate project cache", "project_id", projectID, "error", err.Error())
	}

	dto.Success(c, dto.ToProjectResponse(project))
}

// DeleteProject 删除项目
// @Summary 删除项目
// @Tags Projects
// @Param pid path string true "项目 ID"
// @Success 204 "No Content"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [delete]
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	if err := h.projectRepo.Delete(ctx, projectID); err != nil {
		dto.FromAppError(c, err)
		return
	}

	if err := h.cache.InvalidateProject(ctx, projectID); err != nil {
		logger.Warn(ctx, "failed to invalidate project cache", "project_id", projectID, "error", err.Error())
	}

	dto.NoContent(c)
}

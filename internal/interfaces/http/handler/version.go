// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/internal/interfaces/http/dto"
)

// VersionHandler 版本历史处理器
type VersionHandler struct {
	store    *files.Service
	producer *messaging.Producer
}

// NewVersionHandler 创建版本历史处理器
func NewVersionHandler(store *files.Service, producer *messaging.Producer) *VersionHandler {
	return &VersionHandler{
		store:    store,
		producer: producer,
	}
}

// ListVersions 获取项目版本历史
// @Summary 获取项目版本历史
// @Tags Versions
// @Produce json
// @Param pid path string true "项目 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.VersionListResponse]
// @Router /v1/projects/{pid}/versions [get]
func (h *VersionHandler) ListVersions(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	pageReq := dto.BindPage(c)

	result, err := h.store.ListVersions(ctx, projectID, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	resp := dto.ToVersionListResponse(result.Items)
	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, resp, meta)
}

// GetVersion 获取单个版本
// @Summary 获取单个版本
// @Tags Versions
// @Produce json
// @Param vid path string true "版本 ID"
// @Success 200 {object} dto.Response[dto.VersionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/versions/{vid} [get]
func (h *VersionHandler) GetVersion(c *gin.Context) {
	ctx := c.Request.Context()
	versionID := dto.BindVersionID(c)

	version, err := h.store.GetVersion(ctx, versionID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToVersionResponse(version))
}

// RestoreVersion 恢复到目标版本
// 恢复表达为追加新版本而不是改写历史，可重复执行。
// @Summary 恢复到目标版本
// @Tags Versions
// @Accept json
// @Produce json
// @Param vid path string true "版本 ID"
// @Param body body dto.RestoreRequest false "恢复参数"
// @Success 201 {object} dto.Response[dto.VersionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/versions/{vid}/restore [post]
func (h *VersionHandler) RestoreVersion(c *gin.Context) {
	ctx := c.Request.Context()
	versionID := dto.BindVersionID(c)

	var req dto.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	version, err := h.store.Restore(ctx, versionID, req.Actor)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	publishAudit(c, h.producer, &messaging.AuditLogMessage{
		Actor:        req.Actor,
		Action:       "version.restore",
		ResourceType: "version",
		ResourceID:   versionID,
		ProjectID:    version.ProjectID,
		Changes:      map[string]interface{}{"new_version": version.Number},
	})

	dto.Created(c, dto.ToVersionResponse(version))
}

// BookmarkVersion 切换版本书签
// @Summary 切换版本书签
// @Tags Versions
// @Produce json
// @Param vid path string true "版本 ID"
// @Success 200 {object} dto.Response[dto.VersionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/versions/{vid}/bookmark [post]
func (h *VersionHandler) BookmarkVersion(c *gin.Context) {
	ctx := c.Request.Context()
	versionID := dto.BindVersionID(c)

	version, err := h.store.Bookmark(ctx, versionID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	publishAudit(c, h.producer, &messaging.AuditLogMessage{
		Action:       "version.bookmark",
		ResourceType: "version",
		ResourceID:   versionID,
		ProjectID:    version.ProjectID,
		Changes:      map[string]interface{}{"bookmarked": version.Bookmarked},
	})

	dto.Success(c, dto.ToVersionResponse(version))
}

// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/internal/interfaces/http/dto"
	"z-webforge-api/pkg/errors"
)

// FileHandler 项目文件处理器
// 文件由生成会话写入，对外只读。
type FileHandler struct {
	store *files.Service
	repo  repository.FileRepository
}

// NewFileHandler 创建项目文件处理器
func NewFileHandler(store *files.Service, repo repository.FileRepository) *FileHandler {
	return &FileHandler{
		store: store,
		repo:  repo,
	}
}

// ListFiles 获取项目当前文件集
// @Summary 获取项目当前文件集
// @Tags Files
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.FileListResponse]
// @Router /v1/projects/{pid}/files [get]
func (h *FileHandler) ListFiles(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	records, err := h.store.List(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToFileListResponse(records))
}

// GetFile 获取单个文件内容
// @Summary 获取单个文件内容
// @Tags Files
// @Produce json
// @Param pid path string true "项目 ID"
// @Param path query string true "文件路径"
// @Success 200 {object} dto.Response[dto.FileContentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/file [get]
func (h *FileHandler) GetFile(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	path := c.Query("path")
	if path == "" {
		dto.FromAppError(c, errors.ErrInvalidParam.WithDetail("query parameter path is required"))
		return
	}

	record, err := h.repo.GetByPath(ctx, projectID, path)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, &dto.FileContentResponse{
		Path:     record.Path,
		FileType: string(record.FileType),
		Content:  record.Content,
	})
}

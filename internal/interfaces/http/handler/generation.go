// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/internal/interfaces/http/dto"
)

// GenerationHandler 生成会话处理器
type GenerationHandler struct {
	orchestrator *generation.Orchestrator
	broker       progress.Broker
	producer     *messaging.Producer
}

// NewGenerationHandler 创建生成会话处理器
func NewGenerationHandler(orchestrator *generation.Orchestrator, broker progress.Broker, producer *messaging.Producer) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
		broker:       broker,
		producer:     producer,
	}
}

// StartGeneration 发起生成会话
// 立即返回会话句柄，流水线在后台推进，进度通过 SSE 流获取。
// @Summary 发起生成会话
// @Tags Generation
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param body body dto.StartGenerationRequest true "生成请求"
// @Success 202 {object} dto.Response[dto.GenerationSessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/generate [post]
func (h *GenerationHandler) StartGeneration(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.StartGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	handle, err := h.orchestrator.Start(ctx, projectID, req.Request, req.Actor)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	publishAudit(c, h.producer, &messaging.AuditLogMessage{
		Actor:        req.Actor,
		Action:       "generation.start",
		ResourceType: "session",
		ResourceID:   handle.SessionID,
		ProjectID:    projectID,
	})

	dto.Accepted(c, dto.ToGenerationSessionResponse(handle))
}

// GetSessionState 获取会话累计状态
// 断线重连的客户端先取状态对齐，再订阅事件流。
// @Summary 获取会话累计状态
// @Tags Generation
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionStateResponse]
// @Router /v1/sessions/{sid}/state [get]
func (h *GenerationHandler) GetSessionState(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := dto.BindSessionID(c)

	state, err := h.broker.CurrentState(ctx, progress.SessionTopic(sessionID))
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.ToSessionStateResponse(state))
}

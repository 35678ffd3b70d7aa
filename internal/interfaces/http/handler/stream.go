// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/interfaces/http/dto"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/metrics"
)

// StreamHandler 进度事件 SSE 处理器
type StreamHandler struct {
	broker progress.Broker
}

// NewStreamHandler 创建流式响应处理器
func NewStreamHandler(broker progress.Broker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// StreamSession 订阅会话进度事件流
// 先下发一次累计状态作为对齐点，再持续推送事件；事件按序号
// 递增有序，重连场景可能重复收到最后一条，客户端按 seq 去重。
// @Summary 订阅会话进度事件流
// @Tags Generation
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Success 200 "SSE stream"
// @Router /v1/sessions/{sid}/stream [get]
func (h *StreamHandler) StreamSession(c *gin.Context) {
	h.stream(c, progress.SessionTopic(dto.BindSessionID(c)))
}

// StreamProjectDeploys 订阅项目部署状态事件流
// @Summary 订阅项目部署状态事件流
// @Tags Deployments
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Success 200 "SSE stream"
// @Router /v1/projects/{pid}/deployments/stream [get]
func (h *StreamHandler) StreamProjectDeploys(c *gin.Context) {
	h.stream(c, progress.ProjectDeployTopic(dto.BindProjectID(c)))
}

func (h *StreamHandler) stream(c *gin.Context, topic string) {
	ctx := c.Request.Context()

	sub, err := h.broker.Subscribe(ctx, topic)
	if err != nil {
		logger.Error(ctx, "failed to subscribe progress topic", err, "topic", topic)
		dto.ServiceUnavailable(c, "progress stream unavailable")
		return
	}
	defer sub.Close()

	metrics.BroadcastSubscribers.Inc()
	defer metrics.BroadcastSubscribers.Dec()

	// SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 对齐点：当前累计状态
	if state, err := h.broker.CurrentState(ctx, topic); err == nil {
		c.SSEvent("state", dto.ToSessionStateResponse(state))
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return !done(ev)

		case <-ctx.Done():
			// 客户端断开
			return false
		}
	})
}

// done 终态事件后结束流
func done(ev progress.Event) bool {
	return ev.Kind == progress.KindCompletion
}

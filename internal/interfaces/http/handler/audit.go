// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/tracer"
)

// publishAudit 把写操作投递到审计流
// 审计走异步队列，失败只记日志，不影响请求本身。
func publishAudit(c *gin.Context, producer *messaging.Producer, entry *messaging.AuditLogMessage) {
	if producer == nil {
		return
	}
	ctx := c.Request.Context()

	entry.RequestID = c.GetString("request_id")
	entry.TraceID = tracer.TraceID(ctx)
	entry.IPAddress = c.ClientIP()
	entry.UserAgent = c.Request.UserAgent()

	if _, err := producer.PublishAuditLog(ctx, entry); err != nil {
		logger.Warn(ctx, "failed to publish audit log",
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"error", err,
		)
	}
}

// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 项目管理
	projects := v1.Group("/projects")
	{
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:pid", h.Project.GetProject)
		projects.PUT("/:pid", h.Project.UpdateProject)
		projects.DELETE("/:pid", h.Project.DeleteProject)

		// 生成会话
		projects.POST("/:pid/generate", h.Generation.StartGeneration)

		// 项目文件（只读）
		projects.GET("/:pid/files", h.File.ListFiles)
		projects.GET("/:pid/file", h.File.GetFile)

		// 版本历史
		projects.GET("/:pid/versions", h.Version.ListVersions)

		// 部署记录与异步部署
		projects.GET("/:pid/deployments", h.Deployment.ListDeployments)
		projects.GET("/:pid/deployments/stream", h.Stream.StreamProjectDeploys) // SSE
		projects.GET("/:pid/deployments/:env", h.Deployment.GetDeployment)
		projects.POST("/:pid/deployments/:env", h.Deployment.TriggerDeployment)
	}

	// 会话进度
	sessions := v1.Group("/sessions")
	{
		sessions.GET("/:sid/state", h.Generation.GetSessionState)
		sessions.GET("/:sid/stream", h.Stream.StreamSession) // SSE
	}

	// 版本管理
	versions := v1.Group("/versions")
	{
		versions.GET("/:vid", h.Version.GetVersion)
		versions.POST("/:vid/restore", h.Version.RestoreVersion)
		versions.POST("/:vid/bookmark", h.Version.BookmarkVersion)
	}
}

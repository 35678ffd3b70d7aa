// Package generation 实现生成编排：从用户请求到部署完成的六阶段状态机
package generation

import (
	"context"
	"time"

	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/domain/entity"
)

// Intent 对用户请求的结构化理解
type Intent struct {
	Summary      string   `json:"summary"`
	Features     []string `json:"features,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// PlanRequest 规划阶段的输入
type PlanRequest struct {
	ProjectID    string
	Request      string
	Intent       *Intent
	CurrentFiles map[string][]byte
}

// RepairRequest 修复重试的输入，携带上一次构建错误作为上下文
type RepairRequest struct {
	ProjectID    string
	Request      string
	BuildErrors  string
	CurrentFiles map[string][]byte
}

// CodeGenerator 内容生成能力
// 对模型本身不做假设：给定提示与上下文返回文件内容的黑盒。
type CodeGenerator interface {
	// Interpret 从请求文本提炼意图摘要
	Interpret(ctx context.Context, projectID, request string) (*Intent, error)

	// Plan 产出有序的文件操作列表，不触碰存储
	Plan(ctx context.Context, req PlanRequest) ([]entity.FileOperation, error)

	// Repair 基于构建错误重新生成出问题的文件
	Repair(ctx context.Context, req RepairRequest) ([]entity.FileOperation, error)
}

// DeployResult 一次发布的结果
type DeployResult struct {
	URL    string
	Status entity.DeploymentStatus
}

// Publisher 部署发布能力
// 幂等：相同包重复发布到相同环境得到相同结果而非重复实例。
type Publisher interface {
	Publish(ctx context.Context, pkg *pack.Package, env entity.Environment) (*DeployResult, error)
}

// AssetStore 外置资源存储
type AssetStore interface {
	// UploadAll 上传外置资源，键为打包器生成的确定性路径
	UploadAll(ctx context.Context, projectID string, assets map[string][]byte) error
}

// SessionLocker 项目级会话互斥锁
// TTL 兜底：进程崩溃后锁到期自动释放，项目不会永久卡死。
type SessionLocker interface {
	// Acquire 尝试获取项目锁，已被占用时返回 false
	Acquire(ctx context.Context, projectID, sessionID string, ttl time.Duration) (bool, error)

	// Release 释放项目锁，仅持有者可释放
	Release(ctx context.Context, projectID, sessionID string) error
}

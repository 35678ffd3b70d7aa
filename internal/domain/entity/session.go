// Package entity 定义领域实体
package entity

import (
	"time"
)

// SessionStatus 生成会话状态
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusTimedOut  SessionStatus = "timed_out"
)

// FileOpVerb 文件操作动词
type FileOpVerb string

const (
	FileOpCreate FileOpVerb = "create"
	FileOpUpdate FileOpVerb = "update"
	FileOpDelete FileOpVerb = "delete"
)

// FileOperation 计划中的单个文件操作
type FileOperation struct {
	Verb     FileOpVerb `json:"verb"`
	Path     string     `json:"path"`
	Content  []byte     `json:"content,omitempty"`
	FileType FileType   `json:"file_type,omitempty"`
}

// AppliedOperation 会话内已执行的文件操作日志项
type AppliedOperation struct {
	Verb      FileOpVerb `json:"verb"`
	Path      string     `json:"path"`
	Succeeded bool       `json:"succeeded"`
	Error     string     `json:"error,omitempty"`
	AppliedAt time.Time  `json:"applied_at"`
}

// GenerationSession 一次进行中的生成编排
// 瞬态对象：由编排器持有，结束后只保留广播出去的终态。
// 同一项目同一时刻至多一个活跃会话。
type GenerationSession struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	Request     string             `json:"request"`
	Actor       string             `json:"actor"`
	Status      SessionStatus      `json:"status"`
	PhaseIndex  int                `json:"phase_index"`
	OpLog       []AppliedOperation `json:"op_log"`
	Deadline    time.Time          `json:"deadline"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// NewGenerationSession 创建新会话
func NewGenerationSession(id, projectID, request, actor string, budget time.Duration) *GenerationSession {
	now := time.Now()
	return &GenerationSession{
		ID:        id,
		ProjectID: projectID,
		Request:   request,
		Actor:     actor,
		Status:    SessionStatusRunning,
		StartedAt: now,
		Deadline:  now.Add(budget),
	}
}

// LogOperation 追加一条文件操作日志
func (s *GenerationSession) LogOperation(verb FileOpVerb, path string, err error) {
	op := AppliedOperation{
		Verb:      verb,
		Path:      path,
		Succeeded: err == nil,
		AppliedAt: time.Now(),
	}
	if err != nil {
		op.Error = err.Error()
	}
	s.OpLog = append(s.OpLog, op)
}

// Expired 检查会话是否超过墙钟预算
func (s *GenerationSession) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

// Complete 标记会话成功结束
func (s *GenerationSession) Complete() {
	now := time.Now()
	s.Status = SessionStatusCompleted
	s.CompletedAt = &now
}

// Fail 标记会话失败
func (s *GenerationSession) Fail() {
	now := time.Now()
	s.Status = SessionStatusFailed
	s.CompletedAt = &now
}

// TimeOut 标记会话超时
func (s *GenerationSession) TimeOut() {
	now := time.Now()
	s.Status = SessionStatusTimedOut
	s.CompletedAt = &now
}

// Elapsed 返回会话耗时
func (s *GenerationSession) Elapsed() time.Duration {
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(s.StartedAt)
}

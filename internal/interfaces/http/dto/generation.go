// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/application/progress"
)

// StartGenerationRequest 发起生成会话请求
type StartGenerationRequest struct {
	Request string `json:"request" binding:"required"`
	Actor   string `json:"actor,omitempty"`
}

// GenerationSessionResponse 生成会话响应
type GenerationSessionResponse struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id"`
	Topic     string `json:"topic"`
}

// ToGenerationSessionResponse 转换会话句柄为响应
func ToGenerationSessionResponse(handle *generation.SessionHandle) *GenerationSessionResponse {
	return &GenerationSessionResponse{
		SessionID: handle.SessionID,
		ProjectID: handle.ProjectID,
		Topic:     handle.Topic,
	}
}

// SessionStateResponse 会话累计状态响应
type SessionStateResponse struct {
	Topic       string   `json:"topic"`
	PhaseIndex  int      `json:"phase_index"`
	PhaseName   string   `json:"phase_name,omitempty"`
	TotalPhases int      `json:"total_phases"`
	Files       []string `json:"files,omitempty"`
	LastSeq     int64    `json:"last_seq"`
	Done        bool     `json:"done"`
}

// ToSessionStateResponse 转换主题状态为响应
func ToSessionStateResponse(state *progress.TopicState) *SessionStateResponse {
	return &SessionStateResponse{
		Topic:       state.Topic,
		PhaseIndex:  state.PhaseIndex,
		PhaseName:   state.PhaseName,
		TotalPhases: state.TotalPhases,
		Files:       state.Files,
		LastSeq:     state.LastSeq,
		Done:        state.Done,
	}
}

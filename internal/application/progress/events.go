// Package progress 定义生成进度的广播契约
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind 事件种类
type Kind string

const (
	KindPhaseStarted    Kind = "phase_started"
	KindFileOperation   Kind = "file_operation"
	KindDependencyCheck Kind = "dependency_check"
	KindBuildOutput     Kind = "build_output"
	KindError           Kind = "error"
	KindCompletion      Kind = "completion"
	KindDeployStatus    Kind = "deploy_status"
)

// Event 单条进度事件
// Seq 由发布方按主题单调分配，订阅方据此去重/排序校验。
type Event struct {
	Kind      Kind            `json:"kind"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PhaseStartedPayload 阶段开始
type PhaseStartedPayload struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// FileOperationPayload 单个文件操作
type FileOperationPayload struct {
	Verb    string `json:"verb"`
	Path    string `json:"path"`
	Preview string `json:"preview,omitempty"`
}

// DependencyCheckPayload 依赖检查结果
type DependencyCheckPayload struct {
	Required []string `json:"required"`
	Missing  []string `json:"missing,omitempty"`
	Resolved []string `json:"resolved,omitempty"`
}

// BuildOutputPayload 构建输出行
type BuildOutputPayload struct {
	Line   string `json:"line"`
	Stream string `json:"stream"` // stdout/stderr
}

// ErrorPayload 终态错误
// Detail 保留技术细节，默认不面向用户展示。
type ErrorPayload struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Detail      string   `json:"detail,omitempty"`
}

// CompletionStats 完成统计
type CompletionStats struct {
	FilesWritten  int    `json:"files_written"`
	VersionNumber string `json:"version_number,omitempty"`
	PreviewURL    string `json:"preview_url,omitempty"`
	ProductionURL string `json:"production_url,omitempty"`
	EmbeddedSize  int64  `json:"embedded_size,omitempty"`
	OffloadedSize int64  `json:"offloaded_size,omitempty"`
}

// CompletionPayload 会话完成
type CompletionPayload struct {
	Success   bool            `json:"success"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Stats     CompletionStats `json:"stats"`
}

// DeployStatusPayload 项目级粗粒度部署状态
type DeployStatusPayload struct {
	Environment string `json:"environment"`
	Status      string `json:"status"` // deploying/deployed/failed
	URL         string `json:"url,omitempty"`
}

// NewEvent 创建事件并序列化载荷
func NewEvent(kind Kind, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		// 载荷都是本包内的纯数据结构，序列化失败属编程错误
		panic(fmt.Sprintf("progress: marshal %s payload: %v", kind, err))
	}
	return Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   data,
	}
}

// DecodePayload 解析事件载荷
func DecodePayload[T any](ev Event) (T, error) {
	var out T
	err := json.Unmarshal(ev.Payload, &out)
	return out, err
}

// SessionTopic 会话主题名
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

// ProjectDeployTopic 项目级部署状态主题名
func ProjectDeployTopic(projectID string) string {
	return "project:" + projectID + ":deploy"
}

// Package build 定义构建服务契约与构建模式推断
package build

import (
	"context"
	"fmt"
	"strings"
)

// CompileIssue 编译失败的单条诊断
type CompileIssue struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// String 渲染为 file:line 形式的诊断行
func (i CompileIssue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", i.File, i.Line, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.File, i.Message)
}

// Result 一次构建的结果
// Success 为 false 时 Issues 描述生成代码的编译错误，可用于修复重试；
// 构建基础设施本身的故障通过 error 返回，属不可修复失败。
type Result struct {
	Success   bool
	Assets    map[string][]byte
	TotalSize int64
	Output    []string
	Issues    []CompileIssue
}

// IssueSummary 汇总诊断信息，作为修复请求的上下文
func (r *Result) IssueSummary() string {
	lines := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		lines = append(lines, issue.String())
	}
	return strings.Join(lines, "\n")
}

// Builder 构建服务
// 同一 (文件树, 模式) 的构建可安全重试。
type Builder interface {
	Build(ctx context.Context, fileTree map[string][]byte, mode Mode) (*Result, error)
}

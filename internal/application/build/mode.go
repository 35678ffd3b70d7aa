// Package build 定义构建服务契约与构建模式推断
package build

import "strings"

// Mode 构建模式
type Mode string

const (
	// ModeDevelopment 快速构建，跳过压缩等昂贵优化
	ModeDevelopment Mode = "development"
	// ModeProduction 完整构建，产物面向线上发布
	ModeProduction Mode = "production"
)

// ModeClassifier 从用户请求文本推断构建模式
// 保持为可替换的函数值，便于单独测试与按需更换启发式。
type ModeClassifier func(request string) Mode

// 请求中出现这些词时视为发布意图
var productionSignals = []string{
	"production",
	"publish",
	"deploy",
	"release",
	"go live",
	"launch",
	"上线",
	"发布",
	"部署",
}

// ClassifyRequestMode 默认的构建模式启发式
func ClassifyRequestMode(request string) Mode {
	lowered := strings.ToLower(request)
	for _, signal := range productionSignals {
		if strings.Contains(lowered, signal) {
			return ModeProduction
		}
	}
	return ModeDevelopment
}

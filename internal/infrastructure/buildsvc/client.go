// Package buildsvc 提供构建服务客户端
//
// 区分两类失败：响应里的编译诊断属于可修复失败，原样返回给调用方；
// 传输错误与 5xx 属于工具链故障，重试耗尽后以 error 返回。
package buildsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/config"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
)

var tracer = otel.Tracer("buildsvc")

// Client 构建服务客户端
type Client struct {
	endpoint   string
	retryLimit int
	backoff    config.BackoffConfig
	httpClient *http.Client
}

// NewClient 创建构建服务客户端
func NewClient(cfg *config.BuildConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 2
	}
	backoff := cfg.Backoff
	if backoff.Initial <= 0 {
		backoff = config.BackoffConfig{
			Initial:    500 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2,
		}
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		retryLimit: retryLimit,
		backoff:    backoff,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type buildRequest struct {
	Files map[string][]byte `json:"files"`
	Mode  string            `json:"mode"`
}

type buildResponse struct {
	Success bool                 `json:"success"`
	Assets  map[string][]byte    `json:"assets,omitempty"`
	Output  []string             `json:"output,omitempty"`
	Issues  []build.CompileIssue `json:"issues,omitempty"`
}

// Build 实现 build.Builder
func (c *Client) Build(ctx context.Context, fileTree map[string][]byte, mode build.Mode) (*build.Result, error) {
	ctx, span := tracer.Start(ctx, "buildsvc.Build",
		trace.WithAttributes(
			attribute.String("build.mode", string(mode)),
			attribute.Int("build.file_count", len(fileTree)),
		))
	defer span.End()

	if c.endpoint == "" {
		return nil, errors.ErrTooling.WithDetail("build endpoint is empty")
	}

	reqBody, err := json.Marshal(&buildRequest{
		Files: fileTree,
		Mode:  string(mode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal build request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			wait := c.backoff.CalculateBackoff(attempt - 1)
			logger.Warn(ctx, "retrying build request",
				"attempt", attempt,
				"backoff_ms", wait.Milliseconds(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, retryable, err := c.doBuild(ctx, reqBody)
		if err == nil {
			span.SetAttributes(attribute.Bool("build.success", result.Success))
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	span.RecordError(lastErr)
	return nil, errors.ErrTooling.WithError(lastErr)
}

// doBuild 执行单次构建请求，retryable 表示该失败是否值得重试
func (c *Client) doBuild(ctx context.Context, reqBody []byte) (*build.Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/build", bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("build request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("build service unavailable: status=%d", httpResp.StatusCode)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("build request rejected: status=%d", httpResp.StatusCode)
	}

	var resp buildResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, true, fmt.Errorf("failed to decode build response: %w", err)
	}

	result := &build.Result{
		Success: resp.Success,
		Assets:  resp.Assets,
		Output:  resp.Output,
		Issues:  resp.Issues,
	}
	for _, content := range resp.Assets {
		result.TotalSize += int64(len(content))
	}
	return result, false, nil
}

// Package codegen 提供内容生成服务客户端
//
// 生成能力是不透明 HTTP 服务：给定请求文本与项目现状返回文件操作。
// 对服务背后的实现不做任何假设。
package codegen

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

	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/pkg/errors"
)

var tracer = otel.Tracer("codegen")

// Client 内容生成服务客户端
type Client struct {
	endpoint   string
	apiKey     string
	maxFiles   int
	httpClient *http.Client
}

// NewClient 创建生成服务客户端
func NewClient(cfg *config.CodeGenConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 64
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		maxFiles: maxFiles,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type interpretRequest struct {
	ProjectID string `json:"project_id"`
	Request   string `json:"request"`
}

type planRequest struct {
	ProjectID    string             `json:"project_id"`
	Request      string             `json:"request"`
	Intent       *generation.Intent `json:"intent,omitempty"`
	CurrentFiles map[string][]byte  `json:"current_files,omitempty"`
	MaxFiles     int                `json:"max_files"`
}

type repairRequest struct {
	ProjectID    string            `json:"project_id"`
	Request      string            `json:"request"`
	BuildErrors  string            `json:"build_errors"`
	CurrentFiles map[string][]byte `json:"current_files,omitempty"`
	MaxFiles     int               `json:"max_files"`
}

type operationsResponse struct {
	Operations []entity.FileOperation `json:"operations"`
}

// Interpret 实现 generation.CodeGenerator
func (c *Client) Interpret(ctx context.Context, projectID, request string) (*generation.Intent, error) {
	ctx, span := tracer.Start(ctx, "codegen.Interpret",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	var intent generation.Intent
	if err := c.post(ctx, "/v1/interpret", &interpretRequest{
		ProjectID: projectID,
		Request:   request,
	}, &intent); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if intent.Summary == "" {
		intent.Summary = request
	}
	return &intent, nil
}

// Plan 实现 generation.CodeGenerator
func (c *Client) Plan(ctx context.Context, req generation.PlanRequest) ([]entity.FileOperation, error) {
	ctx, span := tracer.Start(ctx, "codegen.Plan",
		trace.WithAttributes(
			attribute.String("project_id", req.ProjectID),
			attribute.Int("current_file_count", len(req.CurrentFiles)),
		))
	defer span.End()

	var resp operationsResponse
	if err := c.post(ctx, "/v1/plan", &planRequest{
		ProjectID:    req.ProjectID,
		Request:      req.Request,
		Intent:       req.Intent,
		CurrentFiles: req.CurrentFiles,
		MaxFiles:     c.maxFiles,
	}, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("operation_count", len(resp.Operations)))
	return resp.Operations, nil
}

// Repair 实现 generation.CodeGenerator
func (c *Client) Repair(ctx context.Context, req generation.RepairRequest) ([]entity.FileOperation, error) {
	ctx, span := tracer.Start(ctx, "codegen.Repair",
		trace.WithAttributes(attribute.String("project_id", req.ProjectID)))
	defer span.End()

	var resp operationsResponse
	if err := c.post(ctx, "/v1/repair", &repairRequest{
		ProjectID:    req.ProjectID,
		Request:      req.Request,
		BuildErrors:  req.BuildErrors,
		CurrentFiles: req.CurrentFiles,
		MaxFiles:     c.maxFiles,
	}, &resp); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("operation_count", len(resp.Operations)))
	return resp.Operations, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if c.endpoint == "" {
		return errors.ErrCodeGenCallFailed.WithDetail("codegen endpoint is empty")
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal codegen request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create codegen request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.ErrCodeGenCallFailed.WithError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return errors.ErrCodeGenCallFailed.WithDetail(fmt.Sprintf("status=%d path=%s", httpResp.StatusCode, path))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return errors.ErrCodeGenCallFailed.WithError(fmt.Errorf("failed to decode codegen response: %w", err))
	}
	return nil
}

// Package deployer 提供边缘执行平台的发布客户端
//
// 发布以包 ID 为幂等键：相同包重复发布到相同环境返回既有部署。
// 瞬时故障按指数退避重试，重试耗尽才算失败。
package deployer

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
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/metrics"
)

var tracer = otel.Tracer("deployer")

// Client 发布客户端
type Client struct {
	endpoint   string
	apiToken   string
	retryLimit int
	backoff    config.BackoffConfig
	httpClient *http.Client
}

// NewClient 创建发布客户端
func NewClient(cfg *config.DeployerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 3
	}
	backoff := cfg.Backoff
	if backoff.Initial <= 0 {
		backoff = config.BackoffConfig{
			Initial:    time.Second,
			Max:        10 * time.Second,
			Multiplier: 2,
		}
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiToken:   cfg.APIToken,
		retryLimit: retryLimit,
		backoff:    backoff,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type publishRequest struct {
	PackageID    string            `json:"package_id"`
	ProjectID    string            `json:"project_id"`
	Environment  string            `json:"environment"`
	WorkerScript string            `json:"worker_script"`
	Assets       map[string][]byte `json:"assets,omitempty"`
}

type publishResponse struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// Publish 实现 generation.Publisher
func (c *Client) Publish(ctx context.Context, pkg *pack.Package, env entity.Environment) (*generation.DeployResult, error) {
	ctx, span := tracer.Start(ctx, "deployer.Publish",
		trace.WithAttributes(
			attribute.String("deploy.package_id", pkg.ID),
			attribute.String("deploy.project_id", pkg.ProjectID),
			attribute.String("deploy.environment", string(env)),
		))
	defer span.End()

	if c.endpoint == "" {
		return nil, errors.ErrDeployFailed.WithDetail("deployer endpoint is empty")
	}

	reqBody, err := json.Marshal(&publishRequest{
		PackageID:    pkg.ID,
		ProjectID:    pkg.ProjectID,
		Environment:  string(env),
		WorkerScript: string(pkg.WorkerScript),
		Assets:       pkg.Embedded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal publish request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			wait := c.backoff.CalculateBackoff(attempt - 1)
			metrics.DeployRetries.Inc()
			logger.Warn(ctx, "retrying deployment",
				"package_id", pkg.ID,
				"environment", string(env),
				"attempt", attempt,
				"backoff_ms", wait.Milliseconds(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, retryable, err := c.doPublish(ctx, reqBody)
		if err == nil {
			span.SetAttributes(attribute.String("deploy.url", result.URL))
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
	return nil, errors.ErrDeployFailed.WithError(lastErr)
}

// doPublish 执行单次发布请求，retryable 表示该失败是否值得重试
func (c *Client) doPublish(ctx context.Context, reqBody []byte) (*generation.DeployResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/deployments", bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create publish request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("publish request failed: %w", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("deploy platform unavailable: status=%d", httpResp.StatusCode)
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		return nil, false, fmt.Errorf("publish request rejected: status=%d", httpResp.StatusCode)
	}

	var resp publishResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, true, fmt.Errorf("failed to decode publish response: %w", err)
	}
	if resp.URL == "" {
		return nil, false, fmt.Errorf("publish response missing deployment url")
	}

	return &generation.DeployResult{
		URL:    resp.URL,
		Status: entity.DeploymentStatusDeployed,
	}, false, nil
}

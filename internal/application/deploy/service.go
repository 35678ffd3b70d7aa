// Package deploy 提供异步部署任务的执行逻辑
// 生成会话在主流程内同步发布预览环境；生产环境提升与失败重发
// 由 deploy-worker 从队列消费后调用本服务完成。
package deploy

import (
	"context"
	stderrors "errors"
	"fmt"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/metrics"
)

// Service 异步部署服务
// 以项目当前文件集为准重新构建、打包并发布到目标环境。
type Service struct {
	store       *files.Service
	builder     build.Builder
	packager    *pack.Packager
	publisher   generation.Publisher
	assetStore  generation.AssetStore
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	broker      progress.Broker
}

// NewService 创建异步部署服务
func NewService(
	store *files.Service,
	builder build.Builder,
	packager *pack.Packager,
	publisher generation.Publisher,
	assetStore generation.AssetStore,
	projects repository.ProjectRepository,
	deployments repository.DeploymentRepository,
	broker progress.Broker,
) *Service {
	return &Service{
		store:       store,
		builder:     builder,
		packager:    packager,
		publisher:   publisher,
		assetStore:  assetStore,
		projects:    projects,
		deployments: deployments,
		broker:      broker,
	}
}

// Execute 部署项目当前文件集到目标环境
// 失败时不触碰既有部署记录，线上实例保持可用；
// 重复执行得到相同的包 ID 语义，发布端以包 ID 去重。
func (s *Service) Execute(ctx context.Context, projectID string, env entity.Environment) (*generation.DeployResult, error) {
	if env != entity.EnvironmentPreview && env != entity.EnvironmentProduction {
		return nil, errors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown environment: %s", env))
	}

	tree, err := s.store.FileTree(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(tree) == 0 {
		return nil, errors.ErrFileNotFound.WithDetail(fmt.Sprintf("project %s has no files to deploy", projectID))
	}

	mode := build.ModeDevelopment
	if env == entity.EnvironmentProduction {
		mode = build.ModeProduction
	}

	result, err := s.builder.Build(ctx, tree, mode)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.ErrTooling.WithError(err)
	}
	if !result.Success {
		return nil, errors.ErrCompile.WithDetail(result.IssueSummary())
	}

	pkg, err := s.packager.Optimize(projectID, result.Assets)
	if err != nil {
		return nil, err
	}

	if len(pkg.Offloaded) > 0 {
		if err := s.assetStore.UploadAll(ctx, projectID, pkg.Offloaded); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorageError, "upload offloaded assets")
		}
	}

	deployResult, err := s.publishTo(ctx, projectID, pkg, env)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.MarkDeployed(env, deployResult.URL)
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}

	logger.Info(ctx, "deployment completed",
		"project_id", projectID,
		"environment", string(env),
		"url", deployResult.URL,
	)
	return deployResult, nil
}

// publishTo 发布到单个环境并维护部署记录与项目级部署主题
func (s *Service) publishTo(ctx context.Context, projectID string, pkg *pack.Package, env entity.Environment) (*generation.DeployResult, error) {
	deployTopic := progress.ProjectDeployTopic(projectID)
	s.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
		Environment: string(env),
		Status:      string(entity.DeploymentStatusDeploying),
	}))

	result, err := s.publisher.Publish(ctx, pkg, env)
	if err != nil {
		s.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
			Environment: string(env),
			Status:      string(entity.DeploymentStatusFailed),
		}))
		metrics.DeploymentsTotal.WithLabelValues(string(env), "failed").Inc()
		return nil, err
	}

	record := entity.NewDeploymentRecord(projectID, env, pkg.ID)
	record.Succeed(result.URL)
	if err := s.deployments.Upsert(ctx, record); err != nil {
		return nil, err
	}
	s.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
		Environment: string(env),
		Status:      string(entity.DeploymentStatusDeployed),
		URL:         result.URL,
	}))
	metrics.DeploymentsTotal.WithLabelValues(string(env), "deployed").Inc()
	return result, nil
}

// publish 广播失败只记日志，不影响部署流程
func (s *Service) publish(ctx context.Context, topic string, ev progress.Event) {
	if err := s.broker.Publish(ctx, topic, ev); err != nil {
		logger.Warn(ctx, "failed to broadcast deploy event", "topic", topic, "error", err)
	}
}

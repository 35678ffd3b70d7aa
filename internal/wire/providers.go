// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/internal/infrastructure/broadcast"
	"z-webforge-api/internal/infrastructure/buildsvc"
	"z-webforge-api/internal/infrastructure/cdnstore"
	"z-webforge-api/internal/infrastructure/codegen"
	"z-webforge-api/internal/infrastructure/deployer"
	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/internal/infrastructure/persistence/postgres"
	"z-webforge-api/internal/infrastructure/persistence/redis"
	"z-webforge-api/internal/interfaces/http/handler"
	"z-webforge-api/internal/interfaces/http/middleware"
	"z-webforge-api/internal/interfaces/http/router"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	// PostgreSQL
	PgClient       *postgres.Client
	TxManager      *postgres.TxManager
	ProjectRepo    *postgres.ProjectRepository
	FileRepo       *postgres.FileRepository
	VersionRepo    *postgres.VersionRepository
	DeploymentRepo *postgres.DeploymentRepository

	// Redis
	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	SessionLock *redis.SessionLock

	// Messaging
	Producer *messaging.Producer
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewProjectRepository,
	postgres.NewFileRepository,
	postgres.NewVersionRepository,
	postgres.NewDeploymentRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.ProjectRepository), new(*postgres.ProjectRepository)),
	wire.Bind(new(repository.FileRepository), new(*postgres.FileRepository)),
	wire.Bind(new(repository.VersionRepository), new(*postgres.VersionRepository)),
	wire.Bind(new(repository.DeploymentRepository), new(*postgres.DeploymentRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	redis.NewSessionLock,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(generation.SessionLocker), new(*redis.SessionLock)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// BroadcastSet 进度广播提供者集合
var BroadcastSet = wire.NewSet(
	ProvideProgressBroker,
	wire.Bind(new(progress.Broker), new(*broadcast.RedisBroker)),
)

// AdapterSet 外部服务适配器提供者集合
var AdapterSet = wire.NewSet(
	ProvideCodeGenClient,
	ProvideBuildClient,
	ProvideDeployerClient,
	ProvideAssetStore,
	wire.Bind(new(generation.CodeGenerator), new(*codegen.Client)),
	wire.Bind(new(build.Builder), new(*buildsvc.Client)),
	wire.Bind(new(generation.Publisher), new(*deployer.Client)),
	wire.Bind(new(generation.AssetStore), new(*cdnstore.Store)),
)

// ApplicationSet 应用层提供者集合
var ApplicationSet = wire.NewSet(
	ProvideSessionConfig,
	ProvideModeClassifier,
	ProvidePackager,
	files.NewService,
	generation.NewOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewHealthHandler,
	handler.NewProjectHandler,
	handler.NewGenerationHandler,
	handler.NewStreamHandler,
	handler.NewVersionHandler,
	handler.NewFileHandler,
	handler.NewDeploymentHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideProgressBroker 提供进度广播代理
func ProvideProgressBroker(redisClient *redis.Client) *broadcast.RedisBroker {
	return broadcast.NewRedisBroker(redisClient)
}

// ProvideCodeGenClient 提供内容生成客户端
func ProvideCodeGenClient(cfg *config.Config) *codegen.Client {
	return codegen.NewClient(&cfg.CodeGen)
}

// ProvideBuildClient 提供构建服务客户端
func ProvideBuildClient(cfg *config.Config) *buildsvc.Client {
	return buildsvc.NewClient(&cfg.Build)
}

// ProvideDeployerClient 提供部署客户端
func ProvideDeployerClient(cfg *config.Config) *deployer.Client {
	return deployer.NewClient(&cfg.Deployer)
}

// ProvideAssetStore 提供静态资源存储
func ProvideAssetStore(ctx context.Context, cfg *config.Config) (*cdnstore.Store, error) {
	return cdnstore.NewStore(ctx, &cfg.Storage.R2)
}

// ProvideSessionConfig 提供会话配置
func ProvideSessionConfig(cfg *config.Config) config.SessionConfig {
	return cfg.Session
}

// ProvideModeClassifier 提供构建模式分类器
func ProvideModeClassifier() build.ModeClassifier {
	return build.ClassifyRequestMode
}

// ProvidePackager 提供部署打包器
func ProvidePackager(cfg *config.Config) *pack.Packager {
	return pack.NewPackager(cfg.Packager)
}

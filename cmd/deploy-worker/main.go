// Package main 异步部署执行器入口（deploy-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"z-webforge-api/internal/application/deploy"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/infrastructure/broadcast"
	"z-webforge-api/internal/infrastructure/buildsvc"
	"z-webforge-api/internal/infrastructure/cdnstore"
	"z-webforge-api/internal/infrastructure/deployer"
	"z-webforge-api/internal/infrastructure/messaging"
	"z-webforge-api/internal/infrastructure/persistence/postgres"
	"z-webforge-api/internal/infrastructure/persistence/redis"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "deploy-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	assetStore, err := cdnstore.NewStore(ctx, &cfg.Storage.R2)
	if err != nil {
		logger.Fatal(ctx, "failed to init asset store", err)
	}

	txMgr := postgres.NewTxManager(pgClient)
	projectRepo := postgres.NewProjectRepository(pgClient)
	fileRepo := postgres.NewFileRepository(pgClient)
	versionRepo := postgres.NewVersionRepository(pgClient)
	deploymentRepo := postgres.NewDeploymentRepository(pgClient)

	fileStore := files.NewService(fileRepo, versionRepo, txMgr)
	broker := broadcast.NewRedisBroker(redisClient)

	deploySvc := deploy.NewService(
		fileStore,
		buildsvc.NewClient(&cfg.Build),
		pack.NewPackager(cfg.Packager),
		deployer.NewClient(&cfg.Deployer),
		assetStore,
		projectRepo,
		deploymentRepo,
		broker,
	)

	deployConsumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamDeployJobs,
		Group:         messaging.ConsumerGroupDeployWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff:       cfg.Messaging.RedisStream.RetryBackoff,
	})

	deployConsumer.RegisterHandler(messaging.TypeDeployJob, func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.DeployJobMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}

		result, err := deploySvc.Execute(msgCtx, payload.ProjectID, payload.Environment)
		if err != nil {
			// 4xx 属于任务本身不可恢复（编译失败、体积超限等），重试无意义
			if appErr := errors.AsAppError(err); appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500 {
				logger.Warn(msgCtx, "deploy job failed permanently",
					"job_id", payload.JobID,
					"environment", string(payload.Environment),
					"error", err,
				)
				return nil
			}
			return err
		}

		logger.Info(msgCtx, "deploy job completed",
			"job_id", payload.JobID,
			"environment", string(payload.Environment),
			"url", result.URL,
		)
		return nil
	})

	auditConsumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamAuditLog,
		Group:         messaging.ConsumerGroupAuditWriter,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff:       cfg.Messaging.RedisStream.RetryBackoff,
	})

	// 审计事件落结构化日志，由日志管道归档
	auditConsumer.RegisterHandler(messaging.TypeAudit, func(msgCtx context.Context, msg *messaging.Message) error {
		var entry messaging.AuditLogMessage
		if err := msg.UnmarshalPayload(&entry); err != nil {
			return err
		}

		logger.Info(msgCtx, "audit event",
			"actor", entry.Actor,
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"resource_id", entry.ResourceID,
			"project_id", entry.ProjectID,
			"request_id", entry.RequestID,
			"trace_id", entry.TraceID,
			"ip_address", entry.IPAddress,
		)
		return nil
	})

	if err := deployConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start deploy consumer", err)
	}
	if err := auditConsumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start audit consumer", err)
	}

	go deployConsumer.MonitorDLQ(ctx, 100)

	log := logger.FromContext(ctx)
	log.Info("deploy-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("deploy-worker shutting down")
	deployConsumer.Stop()
	auditConsumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

package generation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
	"z-webforge-api/pkg/metrics"
)

// Phase 编排阶段
type Phase int

const (
	PhaseInterpret Phase = iota
	PhasePlan
	PhaseFoundation
	PhaseFeatures
	PhaseBuild
	PhaseDeploy

	totalPhases = 6
)

var phaseNames = [totalPhases]string{
	"interpret",
	"plan",
	"foundation",
	"features",
	"build",
	"deploy",
}

// Name 阶段名
func (p Phase) Name() string {
	if p < 0 || int(p) >= totalPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// Index 对外的 1 起始阶段序号
func (p Phase) Index() int {
	return int(p) + 1
}

const maxRequestLength = 10000

// SessionHandle 会话句柄，调用方凭 Topic 订阅进度
type SessionHandle struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id"`
	Topic     string `json:"topic"`
}

// sessionState 单次会话的流水上下文，随阶段推进填充
type sessionState struct {
	session       *entity.GenerationSession
	topic         string
	mode          build.Mode
	intent        *Intent
	plan          []entity.FileOperation
	buildResult   *build.Result
	pkg           *pack.Package
	version       *entity.Version
	previewURL    string
	productionURL string
	filesWritten  int
}

// Orchestrator 生成编排器
// 阶段严格向前推进，唯一的回退是第五阶段内的一次修复重试。
type Orchestrator struct {
	sessionCfg  config.SessionConfig
	codegen     CodeGenerator
	builder     build.Builder
	classify    build.ModeClassifier
	packager    *pack.Packager
	publisher   Publisher
	assetStore  AssetStore
	store       *files.Service
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	broker      progress.Broker
	locker      SessionLocker
}

// NewOrchestrator 创建生成编排器
func NewOrchestrator(
	sessionCfg config.SessionConfig,
	codegen CodeGenerator,
	builder build.Builder,
	classify build.ModeClassifier,
	packager *pack.Packager,
	publisher Publisher,
	assetStore AssetStore,
	store *files.Service,
	projects repository.ProjectRepository,
	deployments repository.DeploymentRepository,
	broker progress.Broker,
	locker SessionLocker,
) *Orchestrator {
	if classify == nil {
		classify = build.ClassifyRequestMode
	}
	return &Orchestrator{
		sessionCfg:  sessionCfg,
		codegen:     codegen,
		builder:     builder,
		classify:    classify,
		packager:    packager,
		publisher:   publisher,
		assetStore:  assetStore,
		store:       store,
		projects:    projects,
		deployments: deployments,
		broker:      broker,
		locker:      locker,
	}
}

// Start 为项目启动一次生成会话
// 同一项目已有活跃会话时快速失败，不排队。
func (o *Orchestrator) Start(ctx context.Context, projectID, request, actor string) (*SessionHandle, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.ErrValidationFailed.WithDetail("request text is empty")
	}
	if len(request) > maxRequestLength {
		return nil, errors.ErrValidationFailed.
			WithDetail(fmt.Sprintf("request text exceeds %d bytes", maxRequestLength))
	}

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.CanStartGeneration() {
		return nil, errors.ErrAlreadyRunning
	}

	sessionID := uuid.NewString()
	acquired, err := o.locker.Acquire(ctx, projectID, sessionID, o.sessionCfg.LockTTL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCacheError, "acquire session lock")
	}
	if !acquired {
		return nil, errors.ErrAlreadyRunning
	}

	session := entity.NewGenerationSession(sessionID, projectID, request, actor, o.sessionCfg.Timeout)

	project.MarkGenerating()
	if err := o.projects.Update(ctx, project); err != nil {
		_ = o.locker.Release(ctx, projectID, sessionID)
		return nil, err
	}

	metrics.ActiveSessions.Inc()
	go o.run(session)

	logger.Info(ctx, "generation session started",
		"project_id", projectID,
		"session_id", sessionID,
		"actor", actor,
	)
	return &SessionHandle{
		SessionID: sessionID,
		ProjectID: projectID,
		Topic:     progress.SessionTopic(sessionID),
	}, nil
}

// run 在独立任务中驱动会话，墙钟预算由 deadline 上下文强制执行
func (o *Orchestrator) run(session *entity.GenerationSession) {
	ctx := context.WithValue(context.Background(), logger.ProjectIDKey, session.ProjectID)
	ctx = context.WithValue(ctx, logger.SessionIDKey, session.ID)
	ctx, cancel := context.WithDeadline(ctx, session.Deadline)
	defer cancel()

	state := &sessionState{
		session: session,
		topic:   progress.SessionTopic(session.ID),
	}

	defer func() {
		metrics.ActiveSessions.Dec()
		// 释放锁不受会话 deadline 约束
		if err := o.locker.Release(context.Background(), session.ProjectID, session.ID); err != nil {
			logger.Warn(ctx, "release session lock failed", "error", err.Error())
		}
	}()

	if err := o.drive(ctx, state); err != nil {
		o.finishFailure(ctx, state, err)
		return
	}
	o.finishSuccess(ctx, state)
}

// drive 阶段驱动循环
func (o *Orchestrator) drive(ctx context.Context, state *sessionState) error {
	handlers := [totalPhases]func(context.Context, *sessionState) error{
		o.runInterpret,
		o.runPlan,
		o.runFoundation,
		o.runFeatures,
		o.runBuild,
		o.runDeploy,
	}

	for phase := PhaseInterpret; phase <= PhaseDeploy; phase++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state.session.PhaseIndex = phase.Index()
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindPhaseStarted, progress.PhaseStartedPayload{
			Index: phase.Index(),
			Name:  phase.Name(),
			Total: totalPhases,
		}))

		start := time.Now()
		err := handlers[phase](ctx, state)
		metrics.GenerationPhaseDuration.WithLabelValues(phase.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
	}
	return nil
}

// runInterpret 阶段一：从请求提炼意图
func (o *Orchestrator) runInterpret(ctx context.Context, state *sessionState) error {
	intent, err := o.codegen.Interpret(ctx, state.session.ProjectID, state.session.Request)
	if err != nil {
		return errors.ErrCodeGenCallFailed.WithError(err)
	}
	state.intent = intent
	state.mode = o.classify(state.session.Request)

	if len(intent.Dependencies) > 0 {
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindDependencyCheck, progress.DependencyCheckPayload{
			Required: intent.Dependencies,
			Resolved: intent.Dependencies,
		}))
	}
	return nil
}

// runPlan 阶段二：产出文件操作计划，不触碰存储
func (o *Orchestrator) runPlan(ctx context.Context, state *sessionState) error {
	tree, err := o.store.FileTree(ctx, state.session.ProjectID)
	if err != nil {
		return err
	}

	plan, err := o.codegen.Plan(ctx, PlanRequest{
		ProjectID:    state.session.ProjectID,
		Request:      state.session.Request,
		Intent:       state.intent,
		CurrentFiles: tree,
	})
	if err != nil {
		return errors.ErrCodeGenCallFailed.WithError(err)
	}
	if len(plan) == 0 {
		return errors.ErrGenerationFailed.WithDetail("planner produced no file operations")
	}
	state.plan = plan
	return nil
}

// runFoundation 阶段三：落地脚手架文件
// 只创建缺失路径，已存在的文件内容保持不动，重复应用无副作用。
func (o *Orchestrator) runFoundation(ctx context.Context, state *sessionState) error {
	tree, err := o.store.FileTree(ctx, state.session.ProjectID)
	if err != nil {
		return err
	}

	for _, op := range foundationFiles {
		if _, exists := tree[op.Path]; exists {
			continue
		}
		if _, err := o.store.Write(ctx, state.session.ProjectID, op.Path, op.Content); err != nil {
			return err
		}
		state.session.LogOperation(entity.FileOpCreate, op.Path, nil)
		state.filesWritten++
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindFileOperation, progress.FileOperationPayload{
			Verb: string(entity.FileOpCreate),
			Path: op.Path,
		}))
	}
	return nil
}

// runFeatures 阶段四：按计划顺序应用文件操作
// 单个文件失败只记录日志，不中断已应用的其他操作。
func (o *Orchestrator) runFeatures(ctx context.Context, state *sessionState) error {
	for _, op := range state.plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		// 事件按计划顺序发出，与实际完成顺序无关
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindFileOperation, progress.FileOperationPayload{
			Verb:    string(op.Verb),
			Path:    op.Path,
			Preview: contentPreview(op.Content),
		}))

		err := o.applyOperation(ctx, state.session.ProjectID, op)
		state.session.LogOperation(op.Verb, op.Path, err)
		if err != nil {
			logger.Warn(ctx, "file operation failed", "verb", string(op.Verb), "path", op.Path, "error", err.Error())
			continue
		}
		if op.Verb != entity.FileOpDelete {
			state.filesWritten++
		}
	}
	return nil
}

func (o *Orchestrator) applyOperation(ctx context.Context, projectID string, op entity.FileOperation) error {
	switch op.Verb {
	case entity.FileOpDelete:
		return o.store.Delete(ctx, projectID, op.Path)
	default:
		_, err := o.store.Write(ctx, projectID, op.Path, op.Content)
		return err
	}
}

// runBuild 阶段五：校验构建，编译失败时允许一次自动修复
func (o *Orchestrator) runBuild(ctx context.Context, state *sessionState) error {
	result, err := o.buildOnce(ctx, state)
	if err != nil {
		return err
	}
	if result.Success {
		state.buildResult = result
		return nil
	}

	// 修复重试：把构建错误交还生成能力，整个会话只允许一次
	metrics.GenerationRepairAttempts.Inc()
	logger.Info(ctx, "build failed, attempting repair", "issues", len(result.Issues))

	tree, err := o.store.FileTree(ctx, state.session.ProjectID)
	if err != nil {
		return err
	}
	repairs, err := o.codegen.Repair(ctx, RepairRequest{
		ProjectID:    state.session.ProjectID,
		Request:      state.session.Request,
		BuildErrors:  result.IssueSummary(),
		CurrentFiles: tree,
	})
	if err != nil {
		return errors.ErrCodeGenCallFailed.WithError(err)
	}
	for _, op := range repairs {
		err := o.applyOperation(ctx, state.session.ProjectID, op)
		state.session.LogOperation(op.Verb, op.Path, err)
	}

	result, err = o.buildOnce(ctx, state)
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.ErrCompile.
			WithDetail(result.IssueSummary()).
			WithSuggestions(
				"rephrase the request with more specific requirements",
				"retry generation; the repair pass could not resolve the build errors",
			)
	}
	state.buildResult = result
	return nil
}

func (o *Orchestrator) buildOnce(ctx context.Context, state *sessionState) (*build.Result, error) {
	tree, err := o.store.FileTree(ctx, state.session.ProjectID)
	if err != nil {
		return nil, err
	}

	result, err := o.builder.Build(ctx, tree, state.mode)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.ErrTooling.WithError(err)
	}

	for _, line := range result.Output {
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindBuildOutput, progress.BuildOutputPayload{
			Line:   line,
			Stream: "stdout",
		}))
	}
	for _, issue := range result.Issues {
		o.publish(ctx, state.topic, progress.NewEvent(progress.KindBuildOutput, progress.BuildOutputPayload{
			Line:   issue.String(),
			Stream: "stderr",
		}))
	}
	return result, nil
}

// runDeploy 阶段六：打包、发布并提交版本
// 失败时不触碰既有部署，线上实例保持可用。
func (o *Orchestrator) runDeploy(ctx context.Context, state *sessionState) error {
	pkg, err := o.packager.Optimize(state.session.ProjectID, state.buildResult.Assets)
	if err != nil {
		return err
	}
	state.pkg = pkg

	if len(pkg.Offloaded) > 0 {
		if err := o.assetStore.UploadAll(ctx, state.session.ProjectID, pkg.Offloaded); err != nil {
			return errors.Wrap(err, errors.CodeStorageError, "upload offloaded assets")
		}
	}

	preview, err := o.publishTo(ctx, state, entity.EnvironmentPreview)
	if err != nil {
		return err
	}
	state.previewURL = preview.URL

	if state.mode == build.ModeProduction {
		production, err := o.publishTo(ctx, state, entity.EnvironmentProduction)
		if err != nil {
			return err
		}
		state.productionURL = production.URL
	}

	changelog := state.session.Request
	if state.intent != nil && state.intent.Summary != "" {
		changelog = state.intent.Summary
	}
	changedPaths := make([]string, 0, len(state.session.OpLog))
	seen := make(map[string]struct{})
	for _, op := range state.session.OpLog {
		if !op.Succeeded {
			continue
		}
		if _, dup := seen[op.Path]; dup {
			continue
		}
		seen[op.Path] = struct{}{}
		changedPaths = append(changedPaths, op.Path)
	}

	version, err := o.store.Snapshot(ctx, state.session.ProjectID, changelog, changedPaths, state.session.Actor)
	if err != nil {
		return err
	}
	state.version = version

	project, err := o.projects.GetByID(ctx, state.session.ProjectID)
	if err != nil {
		return err
	}
	project.MarkDeployed(entity.EnvironmentPreview, state.previewURL)
	if state.productionURL != "" {
		project.MarkDeployed(entity.EnvironmentProduction, state.productionURL)
	}
	return o.projects.Update(ctx, project)
}

// publishTo 发布到单个环境并维护部署记录与项目级部署主题
// 失败时不改写既有部署记录，旧的线上 URL 保持有效。
func (o *Orchestrator) publishTo(ctx context.Context, state *sessionState, env entity.Environment) (*DeployResult, error) {
	projectID := state.session.ProjectID
	deployTopic := progress.ProjectDeployTopic(projectID)
	o.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
		Environment: string(env),
		Status:      string(entity.DeploymentStatusDeploying),
	}))

	result, err := o.publisher.Publish(ctx, state.pkg, env)
	if err != nil {
		o.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
			Environment: string(env),
			Status:      string(entity.DeploymentStatusFailed),
		}))
		metrics.DeploymentsTotal.WithLabelValues(string(env), "failed").Inc()
		return nil, err
	}

	record := entity.NewDeploymentRecord(projectID, env, state.pkg.ID)
	record.Succeed(result.URL)
	if err := o.deployments.Upsert(ctx, record); err != nil {
		return nil, err
	}
	o.publish(ctx, deployTopic, progress.NewEvent(progress.KindDeployStatus, progress.DeployStatusPayload{
		Environment: string(env),
		Status:      string(entity.DeploymentStatusDeployed),
		URL:         result.URL,
	}))
	metrics.DeploymentsTotal.WithLabelValues(string(env), "deployed").Inc()
	return result, nil
}

// finishSuccess 成功收尾
func (o *Orchestrator) finishSuccess(ctx context.Context, state *sessionState) {
	state.session.Complete()

	stats := progress.CompletionStats{
		FilesWritten:  state.filesWritten,
		PreviewURL:    state.previewURL,
		ProductionURL: state.productionURL,
	}
	if state.version != nil {
		stats.VersionNumber = state.version.Number
	}
	if state.pkg != nil {
		stats.EmbeddedSize = state.pkg.Stats.EmbeddedBytes
		stats.OffloadedSize = state.pkg.Stats.OffloadedBytes
	}

	o.publish(ctx, state.topic, progress.NewEvent(progress.KindCompletion, progress.CompletionPayload{
		Success:   true,
		ElapsedMs: state.session.Elapsed().Milliseconds(),
		Stats:     stats,
	}))

	metrics.GenerationSessionsTotal.WithLabelValues("completed").Inc()
	metrics.GenerationSessionDuration.WithLabelValues("completed").Observe(state.session.Elapsed().Seconds())
	logger.Info(ctx, "generation session completed",
		"elapsed", state.session.Elapsed().String(),
		"files_written", state.filesWritten,
	)
}

// finishFailure 失败收尾
// 超时与失败都不回滚阶段四已写入的文件，存储保持可检视状态。
func (o *Orchestrator) finishFailure(ctx context.Context, state *sessionState, cause error) {
	status := "failed"
	appErr := errors.AsAppError(cause)
	if stderrors.Is(cause, context.DeadlineExceeded) && state.session.Expired(time.Now()) {
		state.session.TimeOut()
		status = "timeout"
		appErr = errors.ErrSessionTimeout.
			WithSuggestions("retry the generation; files written so far are preserved")
	} else {
		state.session.Fail()
	}

	o.publish(ctx, state.topic, progress.NewEvent(progress.KindError, progress.ErrorPayload{
		Message:     appErr.Message,
		Suggestions: appErr.Suggestions,
		Recoverable: false,
		Detail:      appErr.Detail,
	}))
	o.publish(ctx, state.topic, progress.NewEvent(progress.KindCompletion, progress.CompletionPayload{
		Success:   false,
		ElapsedMs: state.session.Elapsed().Milliseconds(),
		Stats:     progress.CompletionStats{FilesWritten: state.filesWritten},
	}))

	if project, err := o.projects.GetByID(context.WithoutCancel(ctx), state.session.ProjectID); err == nil {
		project.MarkFailed()
		if err := o.projects.Update(context.WithoutCancel(ctx), project); err != nil {
			logger.Warn(ctx, "mark project failed errored", "error", err.Error())
		}
	}

	metrics.GenerationSessionsTotal.WithLabelValues(status).Inc()
	metrics.GenerationSessionDuration.WithLabelValues(status).Observe(state.session.Elapsed().Seconds())
	logger.Error(ctx, "generation session failed", cause,
		"status", status,
		"phase", state.session.PhaseIndex,
	)
}

// publish 广播进度事件，广播失败只记日志不影响编排
func (o *Orchestrator) publish(ctx context.Context, topic string, ev progress.Event) {
	if err := o.broker.Publish(context.WithoutCancel(ctx), topic, ev); err != nil {
		logger.Warn(ctx, "publish progress event failed", "topic", topic, "kind", string(ev.Kind), "error", err.Error())
	}
}

// contentPreview 文件内容的事件预览片段
func contentPreview(content []byte) string {
	const max = 120
	if len(content) == 0 {
		return ""
	}
	s := string(content)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && idx < max {
		return s[:idx]
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}

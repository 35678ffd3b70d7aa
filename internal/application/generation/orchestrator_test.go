package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
)

// ---- fakes ----

type fakeCodeGen struct {
	mu          sync.Mutex
	repairCalls int
	planOps     []entity.FileOperation
	repairOps   []entity.FileOperation
}

func (f *fakeCodeGen) Interpret(_ context.Context, _, request string) (*Intent, error) {
	return &Intent{Summary: "summary: " + request, Dependencies: []string{"chart.js"}}, nil
}

func (f *fakeCodeGen) Plan(_ context.Context, _ PlanRequest) ([]entity.FileOperation, error) {
	return f.planOps, nil
}

func (f *fakeCodeGen) Repair(_ context.Context, _ RepairRequest) ([]entity.FileOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repairCalls++
	return f.repairOps, nil
}

func (f *fakeCodeGen) repairCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repairCalls
}

type fakeBuilder struct {
	mu        sync.Mutex
	calls     int
	failFirst int           // 前 N 次构建返回编译错误
	block     chan struct{} // 非空时构建阻塞，等待关闭或上下文取消
	err       error
	assets    map[string][]byte
}

func (f *fakeBuilder) Build(ctx context.Context, _ map[string][]byte, _ build.Mode) (*build.Result, error) {
	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call <= f.failFirst {
		return &build.Result{
			Success: false,
			Issues:  []build.CompileIssue{{File: "app.js", Line: 1, Message: "x is not defined"}},
		}, nil
	}

	assets := f.assets
	if assets == nil {
		assets = map[string][]byte{
			"index.html": []byte("<html></html>"),
			"app.js":     []byte("console.log(1)"),
		}
	}
	var total int64
	for _, content := range assets {
		total += int64(len(content))
	}
	return &build.Result{Success: true, Assets: assets, TotalSize: total}, nil
}

func (f *fakeBuilder) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu   sync.Mutex
	errs map[entity.Environment]error
	pubs []entity.Environment
}

func (f *fakePublisher) Publish(_ context.Context, pkg *pack.Package, env entity.Environment) (*DeployResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[env]; err != nil {
		return nil, err
	}
	f.pubs = append(f.pubs, env)
	return &DeployResult{
		URL:    fmt.Sprintf("https://%s-%s.webforge.dev", pkg.ProjectID, env),
		Status: entity.DeploymentStatusDeployed,
	}, nil
}

type fakeAssetStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
}

func (f *fakeAssetStore) UploadAll(_ context.Context, _ string, assets map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	for path, content := range assets {
		f.uploaded[path] = content
	}
	return nil
}

type memProjects struct {
	mu       sync.Mutex
	projects map[string]*entity.Project
}

func (r *memProjects) Create(_ context.Context, p *entity.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *memProjects) GetByID(_ context.Context, id string) (*entity.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, errors.ErrProjectNotFound
}

func (r *memProjects) Update(_ context.Context, p *entity.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.projects[p.ID] = &cp
	return nil
}

func (r *memProjects) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

func (r *memProjects) ListByOwner(_ context.Context, _ string, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	return repository.NewPagedResult[*entity.Project](nil, 0, pagination), nil
}

func (r *memProjects) UpdateStatus(_ context.Context, id string, status entity.ProjectStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.projects[id]; ok {
		p.Status = status
	}
	return nil
}

type memDeployments struct {
	mu      sync.Mutex
	records map[string]*entity.DeploymentRecord
}

func deployKey(projectID string, env entity.Environment) string {
	return projectID + "/" + string(env)
}

func (r *memDeployments) Upsert(_ context.Context, record *entity.DeploymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		r.records = make(map[string]*entity.DeploymentRecord)
	}
	cp := *record
	r.records[deployKey(record.ProjectID, record.Environment)] = &cp
	return nil
}

func (r *memDeployments) Get(_ context.Context, projectID string, env entity.Environment) (*entity.DeploymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[deployKey(projectID, env)]; ok {
		cp := *record
		return &cp, nil
	}
	return nil, errors.ErrDeploymentNotFound
}

func (r *memDeployments) ListByProject(_ context.Context, projectID string) ([]*entity.DeploymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DeploymentRecord
	for _, record := range r.records {
		if record.ProjectID == projectID {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Environment < out[j].Environment })
	return out, nil
}

type memFileRepo struct {
	mu    sync.Mutex
	files map[string]*entity.FileRecord // "project/path" -> record
}

func (r *memFileRepo) key(projectID, path string) string { return projectID + "\x00" + path }

func (r *memFileRepo) Upsert(_ context.Context, file *entity.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.files == nil {
		r.files = make(map[string]*entity.FileRecord)
	}
	cp := *file
	r.files[r.key(file.ProjectID, file.Path)] = &cp
	return nil
}

func (r *memFileRepo) GetByPath(_ context.Context, projectID, path string) (*entity.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.files[r.key(projectID, path)]; ok {
		cp := *record
		return &cp, nil
	}
	return nil, errors.ErrFileNotFound
}

func (r *memFileRepo) ListByProject(_ context.Context, projectID string) ([]*entity.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.FileRecord
	for _, record := range r.files {
		if record.ProjectID == projectID {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *memFileRepo) Delete(_ context.Context, projectID, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[r.key(projectID, path)]; !ok {
		return errors.ErrFileNotFound
	}
	delete(r.files, r.key(projectID, path))
	return nil
}

type memVersionRepo struct {
	mu       sync.Mutex
	versions []*entity.Version
	nextID   int
}

func (r *memVersionRepo) Create(_ context.Context, version *entity.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	version.ID = fmt.Sprintf("v-%d", r.nextID)
	cp := *version
	r.versions = append(r.versions, &cp)
	return nil
}

func (r *memVersionRepo) GetByID(_ context.Context, id string) (*entity.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, errors.ErrVersionNotFound
}

func (r *memVersionRepo) GetLatestSeq(_ context.Context, projectID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := 0
	for _, v := range r.versions {
		if v.ProjectID == projectID && v.Seq > latest {
			latest = v.Seq
		}
	}
	return latest, nil
}

func (r *memVersionRepo) ListByProject(_ context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Version], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*entity.Version
	for _, v := range r.versions {
		if v.ProjectID == projectID {
			cp := *v
			items = append(items, &cp)
		}
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

func (r *memVersionRepo) SetBookmarked(_ context.Context, id string, bookmarked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ID == id {
			v.Bookmarked = bookmarked
			return nil
		}
	}
	return errors.ErrVersionNotFound
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ---- harness ----

type harness struct {
	orch      *Orchestrator
	codegen   *fakeCodeGen
	builder   *fakeBuilder
	publisher *fakePublisher
	assets    *fakeAssetStore
	projects  *memProjects
	deploys   *memDeployments
	store     *files.Service
	hub       *progress.Hub
	locker    *MemoryLocker
}

func newHarness(t *testing.T, sessionCfg config.SessionConfig) *harness {
	t.Helper()

	codegen := &fakeCodeGen{
		planOps: []entity.FileOperation{
			{Verb: entity.FileOpUpdate, Path: "index.html", Content: []byte("<html><body>hi</body></html>")},
			{Verb: entity.FileOpUpdate, Path: "app.js", Content: []byte("render()")},
		},
	}
	builder := &fakeBuilder{}
	publisher := &fakePublisher{}
	assets := &fakeAssetStore{}
	projects := &memProjects{projects: map[string]*entity.Project{
		"p1": {ID: "p1", Name: "demo", Status: entity.ProjectStatusIdle},
	}}
	deploys := &memDeployments{}
	store := files.NewService(&memFileRepo{}, &memVersionRepo{}, passthroughTx{})
	hub := progress.NewHub()
	locker := NewMemoryLocker()

	packager := pack.NewPackager(config.PackagerConfig{
		HardLimitBytes:      1 << 20,
		SafeLimitBytes:      900 << 10,
		SmallAssetThreshold: 64 << 10,
		CDNBaseURL:          "https://cdn.webforge.dev",
	})

	orch := NewOrchestrator(
		sessionCfg,
		codegen, builder, build.ClassifyRequestMode,
		packager, publisher, assets,
		store, projects, deploys,
		hub, locker,
	)
	return &harness{
		orch: orch, codegen: codegen, builder: builder, publisher: publisher,
		assets: assets, projects: projects, deploys: deploys,
		store: store, hub: hub, locker: locker,
	}
}

func defaultSessionCfg() config.SessionConfig {
	return config.SessionConfig{Timeout: 5 * time.Second, LockTTL: 6 * time.Second}
}

// waitDone 轮询主题状态直到会话终止
func waitDone(t *testing.T, hub *progress.Hub, topic string) *progress.TopicState {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		state, err := hub.CurrentState(context.Background(), topic)
		require.NoError(t, err)
		if state.Done {
			return state
		}
		select {
		case <-deadline:
			t.Fatalf("session on %s did not finish", topic)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// drain 读空订阅通道中当前积压的事件
func drain(sub progress.Subscription) []progress.Event {
	var out []progress.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// ---- tests ----

func TestStart_RejectsEmptyRequest(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	_, err := h.orch.Start(context.Background(), "p1", "   ", "user-1")
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

func TestStart_UnknownProject(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	_, err := h.orch.Start(context.Background(), "missing", "build me a site", "user-1")
	assert.ErrorIs(t, err, errors.ErrProjectNotFound)
}

func TestStart_ProjectAlreadyGenerating(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	ctx := context.Background()

	// 项目状态残留 generating（比如锁 TTL 已过期）时同样拒绝新会话
	require.NoError(t, h.projects.UpdateStatus(ctx, "p1", entity.ProjectStatusGenerating))

	_, err := h.orch.Start(ctx, "p1", "build a blog", "user-1")
	assert.ErrorIs(t, err, errors.ErrAlreadyRunning)
}

func TestSession_BuildDeadlineWithinBudgetIsNotSessionTimeout(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	h.builder.err = context.DeadlineExceeded // 构建服务自身超时，会话墙钟预算远未耗尽
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build a forum", "user-1")
	require.NoError(t, err)
	sub, err := h.hub.Subscribe(ctx, handle.Topic)
	require.NoError(t, err)
	defer sub.Close()

	waitDone(t, h.hub, handle.Topic)

	var errEvent *progress.Event
	for _, ev := range drain(sub) {
		if ev.Kind == progress.KindError {
			e := ev
			errEvent = &e
		}
	}
	require.NotNil(t, errEvent)
	payload, err := progress.DecodePayload[progress.ErrorPayload](*errEvent)
	require.NoError(t, err)
	assert.NotEqual(t, errors.ErrSessionTimeout.Message, payload.Message,
		"downstream deadline must not be reported as a session timeout")

	project, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusFailed, project.Status)
}

func TestSession_SuccessPath(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build me a landing page", "user-1")
	require.NoError(t, err)
	sub, err := h.hub.Subscribe(ctx, handle.Topic)
	require.NoError(t, err)
	defer sub.Close()

	state := waitDone(t, h.hub, handle.Topic)
	require.NotNil(t, state.LastEvent)
	require.Equal(t, progress.KindCompletion, state.LastEvent.Kind)

	completion, err := progress.DecodePayload[progress.CompletionPayload](*state.LastEvent)
	require.NoError(t, err)
	assert.True(t, completion.Success)
	assert.Equal(t, "1.0.0", completion.Stats.VersionNumber, "first successful session commits 1.0.0")
	assert.NotEmpty(t, completion.Stats.PreviewURL)
	assert.Empty(t, completion.Stats.ProductionURL, "plain request deploys preview only")

	// 项目状态与部署记录
	project, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusDeployed, project.Status)
	assert.Equal(t, completion.Stats.PreviewURL, project.PreviewURL)

	record, err := h.deploys.Get(ctx, "p1", entity.EnvironmentPreview)
	require.NoError(t, err)
	assert.Equal(t, entity.DeploymentStatusDeployed, record.Status)

	// 所有阶段按序走完
	assert.Equal(t, 6, state.PhaseIndex)
	assert.Equal(t, 6, state.TotalPhases)

	// 锁已释放：可以立即开启下一个会话
	_, err = h.orch.Start(ctx, "p1", "another request", "user-1")
	require.NoError(t, err)
}

func TestSession_ProductionRequestDeploysBothTargets(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "publish my site to production", "user-1")
	require.NoError(t, err)

	state := waitDone(t, h.hub, handle.Topic)
	completion, err := progress.DecodePayload[progress.CompletionPayload](*state.LastEvent)
	require.NoError(t, err)
	require.True(t, completion.Success)
	assert.NotEmpty(t, completion.Stats.PreviewURL)
	assert.NotEmpty(t, completion.Stats.ProductionURL)

	records, err := h.deploys.ListByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSession_MutualExclusion(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	h.builder.block = make(chan struct{})
	ctx := context.Background()

	first, err := h.orch.Start(ctx, "p1", "build a blog", "user-1")
	require.NoError(t, err)

	_, err = h.orch.Start(ctx, "p1", "build a shop", "user-2")
	assert.ErrorIs(t, err, errors.ErrAlreadyRunning, "second concurrent start must fail fast")

	close(h.builder.block)
	waitDone(t, h.hub, first.Topic)

	// 第一个会话结束后锁释放
	_, err = h.orch.Start(ctx, "p1", "build a shop", "user-2")
	require.NoError(t, err)
}

func TestSession_RepairPassRetriesOnce(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	h.builder.failFirst = 1
	h.codegen.repairOps = []entity.FileOperation{
		{Verb: entity.FileOpUpdate, Path: "app.js", Content: []byte("fixed()")},
	}
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build a dashboard", "user-1")
	require.NoError(t, err)

	state := waitDone(t, h.hub, handle.Topic)
	completion, err := progress.DecodePayload[progress.CompletionPayload](*state.LastEvent)
	require.NoError(t, err)
	assert.True(t, completion.Success, "repaired build must complete the session")
	assert.Equal(t, 1, h.codegen.repairCount(), "exactly one repair attempt")
	assert.Equal(t, 2, h.builder.buildCount(), "one failing build plus one rebuild")
}

func TestSession_CompileErrorAfterRepairFails(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	h.builder.failFirst = 2 // 修复后的重建仍然失败
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build a dashboard", "user-1")
	require.NoError(t, err)
	sub, err := h.hub.Subscribe(ctx, handle.Topic)
	require.NoError(t, err)
	defer sub.Close()

	waitDone(t, h.hub, handle.Topic)
	assert.Equal(t, 1, h.codegen.repairCount(), "repair runs at most once")
	assert.Equal(t, 2, h.builder.buildCount())

	var errEvent *progress.Event
	for _, ev := range drain(sub) {
		if ev.Kind == progress.KindError {
			e := ev
			errEvent = &e
		}
	}
	require.NotNil(t, errEvent)
	payload, err := progress.DecodePayload[progress.ErrorPayload](*errEvent)
	require.NoError(t, err)
	assert.Equal(t, errors.ErrCompile.Message, payload.Message)
	assert.NotEmpty(t, payload.Suggestions)

	project, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusFailed, project.Status)
}

func TestSession_TimeoutReleasesLockAndKeepsFiles(t *testing.T) {
	h := newHarness(t, config.SessionConfig{Timeout: 60 * time.Millisecond, LockTTL: 10 * time.Second})
	h.builder.block = make(chan struct{}) // 构建一直阻塞，只能被 deadline 打断
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build a wiki", "user-1")
	require.NoError(t, err)

	state := waitDone(t, h.hub, handle.Topic)

	sub, err := h.hub.Subscribe(ctx, handle.Topic)
	require.NoError(t, err)
	defer sub.Close()
	completion, err := progress.DecodePayload[progress.CompletionPayload](*state.LastEvent)
	require.NoError(t, err)
	assert.False(t, completion.Success)

	// 阶段四写入的文件原样保留，不回滚
	tree, err := h.store.FileTree(ctx, "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, tree)
	assert.Contains(t, tree, "index.html")

	// 锁立即释放，无需等待 TTL 过期
	_, err = h.orch.Start(ctx, "p1", "try again", "user-1")
	require.NoError(t, err)
}

func TestSession_PhaseEventsOrdered(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	ctx := context.Background()

	handle, err := h.orch.Start(ctx, "p1", "build a portfolio", "user-1")
	require.NoError(t, err)
	sub, err := h.hub.Subscribe(ctx, handle.Topic)
	require.NoError(t, err)
	defer sub.Close()

	waitDone(t, h.hub, handle.Topic)

	lastIndex := 0
	for _, ev := range drain(sub) {
		if ev.Kind != progress.KindPhaseStarted {
			continue
		}
		payload, err := progress.DecodePayload[progress.PhaseStartedPayload](ev)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, payload.Index, lastIndex, "phase index must never go backwards")
		lastIndex = payload.Index
	}
	assert.Positive(t, lastIndex)
}

func TestSession_DeployFailureKeepsPreviousDeployment(t *testing.T) {
	h := newHarness(t, defaultSessionCfg())
	ctx := context.Background()

	// 先完成一次成功部署
	first, err := h.orch.Start(ctx, "p1", "build a landing page", "user-1")
	require.NoError(t, err)
	waitDone(t, h.hub, first.Topic)

	before, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	require.NotEmpty(t, before.PreviewURL)

	// 第二次部署失败
	h.publisher.mu.Lock()
	h.publisher.errs = map[entity.Environment]error{entity.EnvironmentPreview: errors.ErrDeployFailed}
	h.publisher.mu.Unlock()

	second, err := h.orch.Start(ctx, "p1", "add a pricing page", "user-1")
	require.NoError(t, err)
	waitDone(t, h.hub, second.Topic)

	// 项目保留上一次部署的 URL，线上不因失败下线
	after, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusFailed, after.Status)
	assert.Equal(t, before.PreviewURL, after.PreviewURL)

	// 上一次的部署记录原封不动
	record, err := h.deploys.Get(ctx, "p1", entity.EnvironmentPreview)
	require.NoError(t, err)
	assert.Equal(t, entity.DeploymentStatusDeployed, record.Status)
	assert.Equal(t, before.PreviewURL, record.URL)
}

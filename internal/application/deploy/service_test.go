package deploy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-webforge-api/internal/application/build"
	"z-webforge-api/internal/application/files"
	"z-webforge-api/internal/application/generation"
	"z-webforge-api/internal/application/pack"
	"z-webforge-api/internal/application/progress"
	"z-webforge-api/internal/config"
	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
)

// ---- fakes ----

type fakeBuilder struct {
	mu       sync.Mutex
	lastMode build.Mode
	fail     bool
	err      error
}

func (f *fakeBuilder) Build(_ context.Context, tree map[string][]byte, mode build.Mode) (*build.Result, error) {
	f.mu.Lock()
	f.lastMode = mode
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.fail {
		return &build.Result{
			Success: false,
			Issues:  []build.CompileIssue{{File: "app.js", Line: 3, Message: "unexpected token"}},
		}, nil
	}

	assets := make(map[string][]byte, len(tree))
	var total int64
	for path, content := range tree {
		assets[path] = content
		total += int64(len(content))
	}
	return &build.Result{Success: true, Assets: assets, TotalSize: total}, nil
}

func (f *fakeBuilder) mode() build.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMode
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	pubs []entity.Environment
}

func (f *fakePublisher) Publish(_ context.Context, pkg *pack.Package, env entity.Environment) (*generation.DeployResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.pubs = append(f.pubs, env)
	return &generation.DeployResult{
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
	files map[string]*entity.FileRecord
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
}

func (r *memVersionRepo) Create(_ context.Context, version *entity.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	version.ID = fmt.Sprintf("v-%d", len(r.versions)+1)
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
	svc       *Service
	builder   *fakeBuilder
	publisher *fakePublisher
	assets    *fakeAssetStore
	projects  *memProjects
	deploys   *memDeployments
	store     *files.Service
	hub       *progress.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	builder := &fakeBuilder{}
	publisher := &fakePublisher{}
	assets := &fakeAssetStore{}
	projects := &memProjects{projects: map[string]*entity.Project{
		"p1": {ID: "p1", Name: "demo", Status: entity.ProjectStatusIdle},
	}}
	deploys := &memDeployments{}
	store := files.NewService(&memFileRepo{}, &memVersionRepo{}, passthroughTx{})
	hub := progress.NewHub()

	packager := pack.NewPackager(config.PackagerConfig{
		HardLimitBytes:      1 << 20,
		SafeLimitBytes:      900 << 10,
		SmallAssetThreshold: 64 << 10,
		CDNBaseURL:          "https://cdn.webforge.dev",
	})

	svc := NewService(store, builder, packager, publisher, assets, projects, deploys, hub)
	return &harness{
		svc: svc, builder: builder, publisher: publisher, assets: assets,
		projects: projects, deploys: deploys, store: store, hub: hub,
	}
}

func (h *harness) seedFiles(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.store.Write(ctx, "p1", "index.html", []byte("<html><body>hi</body></html>"))
	require.NoError(t, err)
	_, err = h.store.Write(ctx, "p1", "app.js", []byte("render()"))
	require.NoError(t, err)
}

// ---- tests ----

func TestExecute_ProductionSuccess(t *testing.T) {
	h := newHarness(t)
	h.seedFiles(t)
	ctx := context.Background()

	result, err := h.svc.Execute(ctx, "p1", entity.EnvironmentProduction)
	require.NoError(t, err)
	assert.NotEmpty(t, result.URL)
	assert.Equal(t, build.ModeProduction, h.builder.mode())

	record, err := h.deploys.Get(ctx, "p1", entity.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, entity.DeploymentStatusDeployed, record.Status)
	assert.Equal(t, result.URL, record.URL)

	project, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, result.URL, project.ProductionURL)

	// 部署主题收到 deploying -> deployed
	state, err := h.hub.CurrentState(ctx, progress.ProjectDeployTopic("p1"))
	require.NoError(t, err)
	require.NotNil(t, state.LastEvent)
	assert.Equal(t, progress.KindDeployStatus, state.LastEvent.Kind)
	payload, err := progress.DecodePayload[progress.DeployStatusPayload](*state.LastEvent)
	require.NoError(t, err)
	assert.Equal(t, string(entity.DeploymentStatusDeployed), payload.Status)
}

func TestExecute_PreviewUsesDevelopmentBuild(t *testing.T) {
	h := newHarness(t)
	h.seedFiles(t)

	_, err := h.svc.Execute(context.Background(), "p1", entity.EnvironmentPreview)
	require.NoError(t, err)
	assert.Equal(t, build.ModeDevelopment, h.builder.mode())
}

func TestExecute_UnknownEnvironment(t *testing.T) {
	h := newHarness(t)
	h.seedFiles(t)

	_, err := h.svc.Execute(context.Background(), "p1", entity.Environment("staging"))
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
}

func TestExecute_NoFiles(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Execute(context.Background(), "p1", entity.EnvironmentProduction)
	assert.ErrorIs(t, err, errors.ErrFileNotFound)
}

func TestExecute_CompileFailure(t *testing.T) {
	h := newHarness(t)
	h.seedFiles(t)
	h.builder.fail = true
	ctx := context.Background()

	_, err := h.svc.Execute(ctx, "p1", entity.EnvironmentProduction)
	assert.ErrorIs(t, err, errors.ErrCompile)

	_, err = h.deploys.Get(ctx, "p1", entity.EnvironmentProduction)
	assert.ErrorIs(t, err, errors.ErrDeploymentNotFound)
}

func TestExecute_PublishFailureKeepsPreviousDeployment(t *testing.T) {
	h := newHarness(t)
	h.seedFiles(t)
	ctx := context.Background()

	// 第一次部署成功
	first, err := h.svc.Execute(ctx, "p1", entity.EnvironmentProduction)
	require.NoError(t, err)

	// 第二次发布失败
	h.publisher.mu.Lock()
	h.publisher.err = errors.ErrDeployFailed
	h.publisher.mu.Unlock()

	_, err = h.svc.Execute(ctx, "p1", entity.EnvironmentProduction)
	assert.ErrorIs(t, err, errors.ErrDeployFailed)

	// 既有部署记录与项目 URL 原封不动
	record, err := h.deploys.Get(ctx, "p1", entity.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, first.URL, record.URL)
	assert.Equal(t, entity.DeploymentStatusDeployed, record.Status)

	project, err := h.projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.URL, project.ProductionURL)
}

// Package files 实现项目文件与版本快照服务
//
// 版本历史是追加式的：快照一经创建永不修改，恢复操作通过
// 追加新版本表达，而不是改写历史。
package files

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
	"z-webforge-api/pkg/logger"
)

// Service 文件与版本快照服务
// 同一项目的写入与快照串行执行，避免写入与进行中的快照竞争。
type Service struct {
	files      repository.FileRepository
	versions   repository.VersionRepository
	transactor repository.Transactor

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService 创建文件与版本快照服务
func NewService(
	files repository.FileRepository,
	versions repository.VersionRepository,
	transactor repository.Transactor,
) *Service {
	return &Service{
		files:      files,
		versions:   versions,
		transactor: transactor,
		locks:      make(map[string]*sync.Mutex),
	}
}

// projectLock 取项目级互斥锁
func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

// Write 写入项目文件，upsert 语义
// 同一路径永远只有一条记录：不存在则创建，存在则原地更新。
func (s *Service) Write(ctx context.Context, projectID, path string, content []byte) (*entity.FileRecord, error) {
	if path == "" {
		return nil, errors.ErrInvalidParam.WithDetail("file path is empty")
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	fileType := entity.DetectFileType(path)

	existing, err := s.files.GetByPath(ctx, projectID, path)
	if err != nil && !errors.AsAppError(err).Is(errors.ErrFileNotFound) {
		return nil, err
	}

	record := existing
	if record == nil {
		record = entity.NewFileRecord(projectID, path, content, fileType)
	} else {
		record.Replace(content, fileType)
	}

	if err := s.files.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete 删除项目文件
func (s *Service) Delete(ctx context.Context, projectID, path string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	return s.files.Delete(ctx, projectID, path)
}

// List 获取项目当前文件集
func (s *Service) List(ctx context.Context, projectID string) ([]*entity.FileRecord, error) {
	return s.files.ListByProject(ctx, projectID)
}

// FileTree 把当前文件集展开成 path -> content 映射
func (s *Service) FileTree(ctx context.Context, projectID string) (map[string][]byte, error) {
	records, err := s.files.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tree := make(map[string][]byte, len(records))
	for _, record := range records {
		tree[record.Path] = record.Content
	}
	return tree, nil
}

// Snapshot 捕获当前完整文件集为新版本
// 版本号严格递增：首个版本为 1.0.0，之后逐次递增 patch 位。
func (s *Service) Snapshot(ctx context.Context, projectID, changelog string, changedPaths []string, createdBy string) (*entity.Version, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	return s.snapshotLocked(ctx, projectID, changelog, changedPaths, createdBy)
}

func (s *Service) snapshotLocked(ctx context.Context, projectID, changelog string, changedPaths []string, createdBy string) (*entity.Version, error) {
	records, err := s.files.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	snapshot := make([]entity.FileSnapshot, 0, len(records))
	for _, record := range records {
		snapshot = append(snapshot, entity.FileSnapshot{
			Path:     record.Path,
			Content:  record.Content,
			FileType: record.FileType,
		})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Path < snapshot[j].Path })

	var version *entity.Version
	err = s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		prevSeq, err := s.versions.GetLatestSeq(txCtx, projectID)
		if err != nil {
			return err
		}
		version = entity.NewVersion(projectID, prevSeq, changelog, changedPaths, snapshot, createdBy)
		return s.versions.Create(txCtx, version)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "version snapshot created",
		"project_id", projectID,
		"version", version.Number,
		"files", len(snapshot),
	)
	return version, nil
}

// Restore 将目标版本的快照恢复到当前文件集
//
// 快照内的文件逐个写回（缺失则创建，存在则覆盖，记录了删除的条目
// 执行删除）；快照之外的现有文件保持不动。随后追加一个内容等同于
// 恢复结果的新版本。重复恢复同一版本会得到内容相同、号码更高的
// 多个新版本。
func (s *Service) Restore(ctx context.Context, versionID, actor string) (*entity.Version, error) {
	target, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !target.HasSnapshot() {
		return nil, errors.ErrInvalidParam.
			WithDetail(fmt.Sprintf("version %s carries no restorable snapshot", target.Number))
	}

	lock := s.projectLock(target.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	changedPaths := make([]string, 0, len(target.Snapshot))
	for _, snap := range target.Snapshot {
		changedPaths = append(changedPaths, snap.Path)

		if snap.Deleted {
			if err := s.files.Delete(ctx, target.ProjectID, snap.Path); err != nil &&
				!errors.AsAppError(err).Is(errors.ErrFileNotFound) {
				return nil, err
			}
			continue
		}

		existing, err := s.files.GetByPath(ctx, target.ProjectID, snap.Path)
		if err != nil && !errors.AsAppError(err).Is(errors.ErrFileNotFound) {
			return nil, err
		}
		record := existing
		if record == nil {
			record = entity.NewFileRecord(target.ProjectID, snap.Path, snap.Content, snap.FileType)
		} else {
			record.Replace(snap.Content, snap.FileType)
		}
		if err := s.files.Upsert(ctx, record); err != nil {
			return nil, err
		}
	}

	changelog := fmt.Sprintf("Restored from version %s", target.Number)
	version, err := s.snapshotLocked(ctx, target.ProjectID, changelog, changedPaths, actor)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "version restored",
		"project_id", target.ProjectID,
		"source_version", target.Number,
		"new_version", version.Number,
	)
	return version, nil
}

// Bookmark 切换版本书签标记，无其他副作用
func (s *Service) Bookmark(ctx context.Context, versionID string) (*entity.Version, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	version.ToggleBookmark()
	if err := s.versions.SetBookmarked(ctx, versionID, version.Bookmarked); err != nil {
		return nil, err
	}
	return version, nil
}

// GetVersion 获取单个版本
func (s *Service) GetVersion(ctx context.Context, versionID string) (*entity.Version, error) {
	return s.versions.GetByID(ctx, versionID)
}

// ListVersions 分页获取项目版本历史
func (s *Service) ListVersions(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Version], error) {
	return s.versions.ListByProject(ctx, projectID, pagination)
}

// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
)

// VersionRepository 版本仓储实现
type VersionRepository struct {
	client *Client
}

// NewVersionRepository 创建版本仓储
func NewVersionRepository(client *Client) *VersionRepository {
	return &VersionRepository{client: client}
}

// Create 追加新版本
// (project_id, seq) 唯一约束保证版本号严格递增不重号。
func (r *VersionRepository) Create(ctx context.Context, version *entity.Version) error {
	ctx, span := tracer.Start(ctx, "postgres.VersionRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	changedJSON, _ := json.Marshal(version.ChangedPaths)
	snapshotJSON, _ := json.Marshal(version.Snapshot)

	query := `
		INSERT INTO versions (id, project_id, seq, number, changelog, changed_paths, snapshot, bookmarked, created_by, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := q.QueryRowContext(ctx, query,
		version.ProjectID, version.Seq, version.Number, version.Changelog,
		changedJSON, snapshotJSON, version.Bookmarked, version.CreatedBy,
	).Scan(&version.ID, &version.CreatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取版本
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*entity.Version, error) {
	ctx, span := tracer.Start(ctx, "postgres.VersionRepository.GetByID")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, project_id, seq, number, changelog, changed_paths, snapshot, bookmarked, created_by, created_at
		FROM versions
		WHERE id = $1
	`

	version, err := scanVersion(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrVersionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// GetLatestSeq 获取项目当前最大版本序号
func (r *VersionRepository) GetLatestSeq(ctx context.Context, projectID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.VersionRepository.GetLatestSeq")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var seq int
	query := `SELECT COALESCE(MAX(seq), 0) FROM versions WHERE project_id = $1`
	if err := q.QueryRowContext(ctx, query, projectID).Scan(&seq); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get latest seq: %w", err)
	}
	return seq, nil
}

// ListByProject 按序号倒序获取项目版本列表
func (r *VersionRepository) ListByProject(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Version], error) {
	ctx, span := tracer.Start(ctx, "postgres.VersionRepository.ListByProject")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count versions: %w", err)
	}

	query := `
		SELECT id, project_id, seq, number, changelog, changed_paths, snapshot, bookmarked, created_by, created_at
		FROM versions
		WHERE project_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := q.QueryContext(ctx, query, projectID, pagination.Limit(), pagination.Offset())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*entity.Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}

	return repository.NewPagedResult(versions, total, pagination), nil
}

// SetBookmarked 设置书签标记
func (r *VersionRepository) SetBookmarked(ctx context.Context, id string, bookmarked bool) error {
	ctx, span := tracer.Start(ctx, "postgres.VersionRepository.SetBookmarked")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	result, err := q.ExecContext(ctx, `UPDATE versions SET bookmarked = $1 WHERE id = $2`, bookmarked, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set bookmark: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.ErrVersionNotFound
	}
	return nil
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*entity.Version, error) {
	var version entity.Version
	var changedJSON, snapshotJSON []byte
	var createdBy sql.NullString

	if err := row.Scan(
		&version.ID, &version.ProjectID, &version.Seq, &version.Number,
		&version.Changelog, &changedJSON, &snapshotJSON,
		&version.Bookmarked, &createdBy, &version.CreatedAt,
	); err != nil {
		return nil, err
	}

	version.CreatedBy = createdBy.String
	json.Unmarshal(changedJSON, &version.ChangedPaths)
	json.Unmarshal(snapshotJSON, &version.Snapshot)
	return &version, nil
}

// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/pkg/errors"
)

// FileRepository 项目文件仓储实现
type FileRepository struct {
	client *Client
}

// NewFileRepository 创建项目文件仓储
func NewFileRepository(client *Client) *FileRepository {
	return &FileRepository{client: client}
}

// Upsert 按 (project, path) 写入文件
// 依赖 (project_id, path) 唯一约束，同一路径永远只有一行。
func (r *FileRepository) Upsert(ctx context.Context, file *entity.FileRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.FileRepository.Upsert")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO file_records (id, project_id, path, content, file_type, size, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (project_id, path)
		DO UPDATE SET content = EXCLUDED.content, file_type = EXCLUDED.file_type,
			size = EXCLUDED.size, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.Path, file.Content, file.FileType, file.Size,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// GetByPath 根据路径获取文件
func (r *FileRepository) GetByPath(ctx context.Context, projectID, path string) (*entity.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.FileRepository.GetByPath")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, project_id, path, content, file_type, size, created_at, updated_at
		FROM file_records
		WHERE project_id = $1 AND path = $2
	`

	var file entity.FileRecord
	err := q.QueryRowContext(ctx, query, projectID, path).Scan(
		&file.ID, &file.ProjectID, &file.Path, &file.Content,
		&file.FileType, &file.Size, &file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrFileNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

// ListByProject 获取项目全部文件，按路径排序
func (r *FileRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.FileRepository.ListByProject")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, project_id, path, content, file_type, size, created_at, updated_at
		FROM file_records
		WHERE project_id = $1
		ORDER BY path
	`

	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*entity.FileRecord
	for rows.Next() {
		var file entity.FileRecord
		if err := rows.Scan(
			&file.ID, &file.ProjectID, &file.Path, &file.Content,
			&file.FileType, &file.Size, &file.CreatedAt, &file.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, &file)
	}
	return files, nil
}

// Delete 删除文件
func (r *FileRepository) Delete(ctx context.Context, projectID, path string) error {
	ctx, span := tracer.Start(ctx, "postgres.FileRepository.Delete")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	result, err := q.ExecContext(ctx, `DELETE FROM file_records WHERE project_id = $1 AND path = $2`, projectID, path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.ErrFileNotFound
	}
	return nil
}

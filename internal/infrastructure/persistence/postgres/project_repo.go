// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/internal/domain/repository"
	"z-webforge-api/pkg/errors"
)

// ProjectRepository 项目仓储实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO projects (id, owner_id, name, description, status, preview_url, production_url, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	var ownerID sql.NullString
	if project.OwnerID != "" {
		ownerID = sql.NullString{String: project.OwnerID, Valid: true}
	}

	err := q.QueryRowContext(ctx, query,
		ownerID, project.Name, project.Description, project.Status,
		project.PreviewURL, project.ProductionURL,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取项目
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, owner_id, name, description, status, preview_url, production_url, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var project entity.Project
	var ownerID, previewURL, productionURL sql.NullString

	err := q.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &ownerID, &project.Name, &project.Description,
		&project.Status, &previewURL, &productionURL,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrProjectNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	project.OwnerID = ownerID.String
	project.PreviewURL = previewURL.String
	project.ProductionURL = productionURL.String
	return &project, nil
}

// Update 更新项目
func (r *ProjectRepository) Update(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Update")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		UPDATE projects
		SET name = $1, description = $2, status = $3, preview_url = $4, production_url = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := q.QueryRowContext(ctx, query,
		project.Name, project.Description, project.Status,
		project.PreviewURL, project.ProductionURL, project.ID,
	).Scan(&project.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return errors.ErrProjectNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Delete 删除项目（文件/版本/部署记录级联删除）
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Delete")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

// ListByOwner 获取用户项目列表
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.ListByOwner")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var total int64
	countQuery := `SELECT COUNT(*) FROM projects WHERE owner_id = $1`
	if err := q.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `
		SELECT id, owner_id, name, description, status, preview_url, production_url, created_at, updated_at
		FROM projects
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := q.QueryContext(ctx, query, ownerID, pagination.Limit(), pagination.Offset())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*entity.Project
	for rows.Next() {
		var project entity.Project
		var owner, previewURL, productionURL sql.NullString

		if err := rows.Scan(
			&project.ID, &owner, &project.Name, &project.Description,
			&project.Status, &previewURL, &productionURL,
			&project.CreatedAt, &project.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		project.OwnerID = owner.String
		project.PreviewURL = previewURL.String
		project.ProductionURL = productionURL.String
		projects = append(projects, &project)
	}

	return repository.NewPagedResult(projects, total, pagination), nil
}

// UpdateStatus 更新项目状态
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id string, status entity.ProjectStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.UpdateStatus")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := q.ExecContext(ctx, query, status, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

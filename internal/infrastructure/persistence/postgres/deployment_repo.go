// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"z-webforge-api/internal/domain/entity"
	"z-webforge-api/pkg/errors"
)

// DeploymentRepository 部署记录仓储实现
type DeploymentRepository struct {
	client *Client
}

// NewDeploymentRepository 创建部署记录仓储
func NewDeploymentRepository(client *Client) *DeploymentRepository {
	return &DeploymentRepository{client: client}
}

// Upsert 按 (project, environment) 覆盖式写入
// 新部署取代旧记录而非新增，一个环境永远只有一条当前记录。
func (r *DeploymentRepository) Upsert(ctx context.Context, record *entity.DeploymentRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.DeploymentRepository.Upsert")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO deployment_records (id, project_id, environment, package_id, url, status, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (project_id, environment)
		DO UPDATE SET package_id = EXCLUDED.package_id, url = EXCLUDED.url,
			status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		record.ProjectID, record.Environment, record.PackageID, record.URL, record.Status,
	).Scan(&record.ID, &record.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert deployment: %w", err)
	}
	return nil
}

// Get 获取项目在指定环境的部署记录
func (r *DeploymentRepository) Get(ctx context.Context, projectID string, env entity.Environment) (*entity.DeploymentRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.DeploymentRepository.Get")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, project_id, environment, package_id, url, status, updated_at
		FROM deployment_records
		WHERE project_id = $1 AND environment = $2
	`

	var record entity.DeploymentRecord
	err := q.QueryRowContext(ctx, query, projectID, env).Scan(
		&record.ID, &record.ProjectID, &record.Environment,
		&record.PackageID, &record.URL, &record.Status, &record.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrDeploymentNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return &record, nil
}

// ListByProject 获取项目全部部署记录
func (r *DeploymentRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.DeploymentRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.DeploymentRepository.ListByProject")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, project_id, environment, package_id, url, status, updated_at
		FROM deployment_records
		WHERE project_id = $1
		ORDER BY environment
	`

	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var records []*entity.DeploymentRecord
	for rows.Next() {
		var record entity.DeploymentRecord
		if err := rows.Scan(
			&record.ID, &record.ProjectID, &record.Environment,
			&record.PackageID, &record.URL, &record.Status, &record.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}

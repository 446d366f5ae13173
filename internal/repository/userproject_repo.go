package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stageflow/internal/model"
)

// UserProjectRepository tracks per-member ongoing/completed project buckets.
type UserProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *UserProjectRepository {
	return &UserProjectRepository{db: db, logger: logger}
}

// EnsureOngoing places the project in the member's ongoing bucket if no row
// exists yet.
func (r *UserProjectRepository) EnsureOngoing(ctx context.Context, userName, projectName string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO user_projects (user_name, project_name, bucket)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_name, project_name) DO NOTHING
    `, userName, projectName, model.BucketOngoing)
	if err != nil {
		r.logger.Error("Failed to ensure ongoing bucket",
			zap.String("user", userName),
			zap.String("project", projectName),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// MoveToCompleted shifts the project from ongoing to completed for one
// member. Idempotent: once moved, the WHERE clause no longer matches and the
// call is a no-op.
func (r *UserProjectRepository) MoveToCompleted(ctx context.Context, userName, projectName string) (bool, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE user_projects
        SET bucket = $3, updated_at = NOW()
        WHERE user_name = $1 AND project_name = $2 AND bucket = $4
    `, userName, projectName, model.BucketCompleted, model.BucketOngoing)
	if err != nil {
		r.logger.Error("Failed to move project to completed bucket",
			zap.String("user", userName),
			zap.String("project", projectName),
			zap.Error(err),
		)
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MoveToOngoing returns a project to the ongoing bucket, used when a
// completed terminal stage is reopened.
func (r *UserProjectRepository) MoveToOngoing(ctx context.Context, userName, projectName string) (bool, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE user_projects
        SET bucket = $3, updated_at = NOW()
        WHERE user_name = $1 AND project_name = $2 AND bucket = $4
    `, userName, projectName, model.BucketOngoing, model.BucketCompleted)
	if err != nil {
		r.logger.Error("Failed to move project to ongoing bucket",
			zap.String("user", userName),
			zap.String("project", projectName),
			zap.Error(err),
		)
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *UserProjectRepository) ListByUser(ctx context.Context, userName, bucket string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        SELECT project_name FROM user_projects
        WHERE user_name = $1 AND bucket = $2
        ORDER BY project_name ASC
    `, userName, bucket)
	if err != nil {
		r.logger.Error("Failed to list user projects",
			zap.String("user", userName),
			zap.String("bucket", bucket),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

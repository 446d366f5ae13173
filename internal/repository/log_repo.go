package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stageflow/internal/model"
)

type LogRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLogRepository(db *pgxpool.Pool, logger *zap.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

const logColumns = `
        SELECT id, project_name, stage_key, stage_name, substage_id, substage_name,
               assigned_user, description, priority, start_date, stage_deadline,
               substage_deadline, status, is_completed, completed_at,
               extension_requested_by, extension_requested_at, extension_reason,
               extension_rejection_notes, created_at, updated_at
        FROM logs
`

func scanLog(row pgx.Row) (*model.Log, error) {
	var l model.Log
	err := row.Scan(
		&l.ID,
		&l.ProjectName,
		&l.StageKey,
		&l.StageName,
		&l.SubstageID,
		&l.SubstageName,
		&l.AssignedUser,
		&l.Description,
		&l.Priority,
		&l.StartDate,
		&l.StageDeadline,
		&l.SubstageDeadline,
		&l.Status,
		&l.IsCompleted,
		&l.CompletedAt,
		&l.ExtensionRequestedBy,
		&l.ExtensionRequestedAt,
		&l.ExtensionReason,
		&l.ExtensionRejectionNotes,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LogRepository) Insert(ctx context.Context, l *model.Log) (int, error) {
	query := `
        INSERT INTO logs (project_name, stage_key, stage_name, substage_id, substage_name,
            assigned_user, description, priority, start_date, stage_deadline,
            substage_deadline, status, is_completed, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id
    `
	var id int
	err := r.db.QueryRow(ctx, query,
		l.ProjectName,
		l.StageKey,
		l.StageName,
		l.SubstageID,
		l.SubstageName,
		l.AssignedUser,
		l.Description,
		l.Priority,
		l.StartDate,
		l.StageDeadline,
		l.SubstageDeadline,
		l.Status,
		l.IsCompleted,
		l.CompletedAt,
	).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert log",
			zap.String("project", l.ProjectName),
			zap.String("user", l.AssignedUser),
			zap.Error(err),
		)
		return 0, err
	}
	return id, nil
}

// DeleteByProject removes every log derived from the given project. Used by
// the full-replace rebuild.
func (r *LogRepository) DeleteByProject(ctx context.Context, projectName string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM logs WHERE project_name = $1`, projectName)
	if err != nil {
		r.logger.Error("Failed to delete logs for project",
			zap.String("project", projectName),
			zap.Error(err),
		)
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *LogRepository) FindByID(ctx context.Context, id int) (*model.Log, error) {
	l, err := scanLog(r.db.QueryRow(ctx, logColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to find log", zap.Int("id", id), zap.Error(err))
		return nil, err
	}
	return l, nil
}

func (r *LogRepository) FindByUser(ctx context.Context, user string) ([]*model.Log, error) {
	r.logger.Debug("Listing logs for user", zap.String("user", user))

	rows, err := r.db.Query(ctx, logColumns+` WHERE assigned_user = $1 ORDER BY created_at ASC`, user)
	if err != nil {
		r.logger.Error("Failed to query logs",
			zap.String("user", user),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	logs := []*model.Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			r.logger.Error("Failed to scan log row", zap.Error(err))
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *LogRepository) FindByProject(ctx context.Context, projectName string) ([]*model.Log, error) {
	rows, err := r.db.Query(ctx, logColumns+` WHERE project_name = $1 ORDER BY stage_key ASC, id ASC`, projectName)
	if err != nil {
		r.logger.Error("Failed to query project logs",
			zap.String("project", projectName),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	logs := []*model.Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// FindSiblings returns every log for the same (project, stage, substage)
// tuple, i.e. all co-assignees of one task.
func (r *LogRepository) FindSiblings(ctx context.Context, projectName, stageKey string, substageID *string) ([]*model.Log, error) {
	query := logColumns + ` WHERE project_name = $1 AND stage_key = $2 AND substage_id IS NOT DISTINCT FROM $3`

	rows, err := r.db.Query(ctx, query, projectName, stageKey, substageID)
	if err != nil {
		r.logger.Error("Failed to query sibling logs",
			zap.String("project", projectName),
			zap.String("stage_key", stageKey),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	logs := []*model.Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *LogRepository) UpdateStatus(ctx context.Context, id int, statusValue string) error {
	result, err := r.db.Exec(ctx, `
        UPDATE logs SET status = $2, updated_at = NOW() WHERE id = $1
    `, id, statusValue)
	if err != nil {
		r.logger.Error("Failed to update log status",
			zap.Int("id", id),
			zap.Error(err),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVerified completes every sibling log of the tuple in one statement so
// co-assignees are verified together.
func (r *LogRepository) MarkVerified(ctx context.Context, projectName, stageKey string, substageID *string, completedAt time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE logs
        SET is_completed = TRUE, status = $4, completed_at = $5, updated_at = NOW()
        WHERE project_name = $1 AND stage_key = $2 AND substage_id IS NOT DISTINCT FROM $3
    `, projectName, stageKey, substageID, "Completed", completedAt)
	if err != nil {
		r.logger.Error("Failed to mark logs verified",
			zap.String("project", projectName),
			zap.String("stage_key", stageKey),
			zap.Error(err),
		)
		return 0, err
	}
	return result.RowsAffected(), nil
}

// MarkUncompleted reverts completion on every sibling log of the tuple,
// restoring the date-derived status passed in. Logs sitting in a pending
// lifecycle state keep it; those resolve through their own transitions.
func (r *LogRepository) MarkUncompleted(ctx context.Context, projectName, stageKey string, substageID *string, statusValue string) (int64, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE logs
        SET is_completed = FALSE, status = $4, completed_at = NULL, updated_at = NOW()
        WHERE project_name = $1 AND stage_key = $2 AND substage_id IS NOT DISTINCT FROM $3
          AND (is_completed = TRUE OR status NOT IN ('Pending Verification', 'Pending Deadline Approval'))
    `, projectName, stageKey, substageID, statusValue)
	if err != nil {
		r.logger.Error("Failed to mark logs uncompleted",
			zap.String("project", projectName),
			zap.String("stage_key", stageKey),
			zap.Error(err),
		)
		return 0, err
	}
	return result.RowsAffected(), nil
}

// UpdateSiblingDeadlines rewrites the deadline columns and status on every
// sibling log of the tuple so co-assignees see an approved extension too.
func (r *LogRepository) UpdateSiblingDeadlines(ctx context.Context, projectName, stageKey string, substageID *string, substageDeadline, stageDeadline, statusValue string) (int64, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE logs
        SET substage_deadline = $4, stage_deadline = $5, status = $6, updated_at = NOW()
        WHERE project_name = $1 AND stage_key = $2 AND substage_id IS NOT DISTINCT FROM $3
          AND extension_requested_by IS NULL
    `, projectName, stageKey, substageID, substageDeadline, stageDeadline, statusValue)
	if err != nil {
		r.logger.Error("Failed to update sibling deadlines",
			zap.String("project", projectName),
			zap.String("stage_key", stageKey),
			zap.Error(err),
		)
		return 0, err
	}
	return result.RowsAffected(), nil
}

// RecordExtensionRequest stores the pending request on the log.
func (r *LogRepository) RecordExtensionRequest(ctx context.Context, id int, requestedBy, reason string, requestedAt time.Time, statusValue string) error {
	result, err := r.db.Exec(ctx, `
        UPDATE logs
        SET extension_requested_by = $2, extension_requested_at = $3,
            extension_reason = $4, status = $5, updated_at = NOW()
        WHERE id = $1
    `, id, requestedBy, requestedAt, reason, statusValue)
	if err != nil {
		r.logger.Error("Failed to record extension request",
			zap.Int("id", id),
			zap.Error(err),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveExtension clears the pending request, optionally recording
// rejection notes, a replaced deadline, and the recalculated status.
func (r *LogRepository) ResolveExtension(ctx context.Context, id int, substageDeadline, stageDeadline, statusValue string, rejectionNotes *string) error {
	result, err := r.db.Exec(ctx, `
        UPDATE logs
        SET substage_deadline = $2, stage_deadline = $3, status = $4,
            extension_rejection_notes = $5,
            extension_requested_by = NULL, extension_requested_at = NULL,
            updated_at = NOW()
        WHERE id = $1
    `, id, substageDeadline, stageDeadline, statusValue, rejectionNotes)
	if err != nil {
		r.logger.Error("Failed to resolve extension request",
			zap.Int("id", id),
			zap.Error(err),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stageflow/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist. Callers are
// expected to refresh and re-attempt, not assume success.
var ErrNotFound = errors.New("not found")

type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// projectDoc bundles the JSONB columns for marshalling.
type projectDoc struct {
	levels             []byte
	stageTimestamps    []byte
	stageAssignments   []byte
	substageCompletion []byte
	substageTimestamps []byte
}

func marshalDoc(p *model.Project) (projectDoc, error) {
	p.EnsureMaps()
	var doc projectDoc
	var err error
	if doc.levels, err = json.Marshal(p.Levels); err != nil {
		return doc, fmt.Errorf("failed to marshal levels: %w", err)
	}
	if doc.stageTimestamps, err = json.Marshal(p.StageTimestamps); err != nil {
		return doc, fmt.Errorf("failed to marshal stage timestamps: %w", err)
	}
	if doc.stageAssignments, err = json.Marshal(p.StageAssignments); err != nil {
		return doc, fmt.Errorf("failed to marshal stage assignments: %w", err)
	}
	if doc.substageCompletion, err = json.Marshal(p.SubstageCompletion); err != nil {
		return doc, fmt.Errorf("failed to marshal substage completion: %w", err)
	}
	if doc.substageTimestamps, err = json.Marshal(p.SubstageTimestamps); err != nil {
		return doc, fmt.Errorf("failed to marshal substage timestamps: %w", err)
	}
	return doc, nil
}

func unmarshalDoc(p *model.Project, doc projectDoc) error {
	if err := json.Unmarshal(doc.levels, &p.Levels); err != nil {
		return fmt.Errorf("failed to unmarshal levels: %w", err)
	}
	if err := json.Unmarshal(doc.stageTimestamps, &p.StageTimestamps); err != nil {
		return fmt.Errorf("failed to unmarshal stage timestamps: %w", err)
	}
	if err := json.Unmarshal(doc.stageAssignments, &p.StageAssignments); err != nil {
		return fmt.Errorf("failed to unmarshal stage assignments: %w", err)
	}
	if err := json.Unmarshal(doc.substageCompletion, &p.SubstageCompletion); err != nil {
		return fmt.Errorf("failed to unmarshal substage completion: %w", err)
	}
	if err := json.Unmarshal(doc.substageTimestamps, &p.SubstageTimestamps); err != nil {
		return fmt.Errorf("failed to unmarshal substage timestamps: %w", err)
	}
	p.EnsureMaps()
	return nil
}

func (r *ProjectRepository) Insert(ctx context.Context, p *model.Project) (int, error) {
	r.logger.Debug("Inserting project",
		zap.String("name", p.Name),
		zap.String("client", p.Client),
	)

	doc, err := marshalDoc(p)
	if err != nil {
		return 0, err
	}

	query := `
        INSERT INTO projects (name, client, description, start_date, due_date,
            levels, level, stage_timestamps, stage_assignments,
            substage_completion, substage_timestamps)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11::jsonb)
        RETURNING id
    `
	var id int
	err = r.db.QueryRow(ctx, query,
		p.Name,
		p.Client,
		p.Description,
		p.StartDate,
		p.DueDate,
		doc.levels,
		p.Level,
		doc.stageTimestamps,
		doc.stageAssignments,
		doc.substageCompletion,
		doc.substageTimestamps,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err))
		return 0, err
	}

	r.logger.Info("Project inserted successfully",
		zap.Int("id", id),
		zap.String("name", p.Name),
	)
	return id, nil
}

const projectColumns = `
        SELECT id, name, client, description, start_date, due_date,
               levels, level, stage_timestamps, stage_assignments,
               substage_completion, substage_timestamps, created_at, updated_at
        FROM projects
`

func (r *ProjectRepository) scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var doc projectDoc
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Client,
		&p.Description,
		&p.StartDate,
		&p.DueDate,
		&doc.levels,
		&p.Level,
		&doc.stageTimestamps,
		&doc.stageAssignments,
		&doc.substageCompletion,
		&doc.substageTimestamps,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalDoc(&p, doc); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepository) FindByName(ctx context.Context, name string) (*model.Project, error) {
	query := projectColumns + ` WHERE name = $1`

	p, err := r.scanProject(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to find project",
			zap.String("name", name),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) List(ctx context.Context) ([]*model.Project, error) {
	query := projectColumns + ` ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			r.logger.Error("Failed to scan project row", zap.Error(err))
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Update writes the whole document back: the scalar fields plus every JSONB
// column, since progression mutates several of them together.
func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Updating project",
		zap.String("name", p.Name),
		zap.Int("level", p.Level),
	)

	doc, err := marshalDoc(p)
	if err != nil {
		return err
	}

	query := `
        UPDATE projects
        SET client = $2, description = $3, start_date = $4, due_date = $5,
            levels = $6::jsonb, level = $7, stage_timestamps = $8::jsonb,
            stage_assignments = $9::jsonb, substage_completion = $10::jsonb,
            substage_timestamps = $11::jsonb, updated_at = NOW()
        WHERE name = $1
    `
	result, err := r.db.Exec(ctx, query,
		p.Name,
		p.Client,
		p.Description,
		p.StartDate,
		p.DueDate,
		doc.levels,
		p.Level,
		doc.stageTimestamps,
		doc.stageAssignments,
		doc.substageCompletion,
		doc.substageTimestamps,
	)
	if err != nil {
		r.logger.Error("Failed to update project",
			zap.String("name", p.Name),
			zap.Error(err),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("Project updated successfully",
		zap.String("name", p.Name),
		zap.Int("level", p.Level),
	)
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM projects WHERE name = $1`, name)
	if err != nil {
		r.logger.Error("Failed to delete project",
			zap.String("name", name),
			zap.Error(err),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Project deleted", zap.String("name", name))
	return nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stageflow/internal/model"
	"stageflow/internal/status"
	"stageflow/pkg/metrics"
)

// Rebuild triggers, recorded on the log_rebuild_count metric.
const (
	TriggerProjectCreate  = "project_create"
	TriggerAssignmentEdit = "assignment_edit"
	TriggerDueDateShift   = "due_date_shift"
	TriggerFullSync       = "full_sync"
)

// LogSynchronizer derives per-assignee task logs from project documents.
// Logs are a projection: a rebuild deletes and recreates every log of a
// project, and completion flags are always taken from the project's
// completion maps, never from the previous logs.
type LogSynchronizer struct {
	projects ProjectStore
	logs     LogStore
	now      Clock
	logger   *zap.Logger
}

func NewLogSynchronizer(projects ProjectStore, logs LogStore, now Clock, logger *zap.Logger) *LogSynchronizer {
	return &LogSynchronizer{projects: projects, logs: logs, now: now, logger: logger}
}

// RebuildProject replaces every log of one project with freshly derived ones.
// One log is created per assignee per substage, and per stage member for
// stages without substages.
func (s *LogSynchronizer) RebuildProject(ctx context.Context, p *model.Project, trigger string) (int, error) {
	s.logger.Debug("Rebuilding logs for project",
		zap.String("project", p.Name),
		zap.String("trigger", trigger),
	)

	deleted, err := s.logs.DeleteByProject(ctx, p.Name)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for i := range p.Levels {
		sa, ok := p.Stage(i)
		if !ok {
			continue
		}
		key := model.StageKey(i)

		if len(sa.Substages) == 0 {
			completed := i <= p.Level
			var completedAt *time.Time
			if ts, found := p.StageTimestamps[key]; found && completed {
				t := ts
				completedAt = &t
			}
			st := status.Calculate(p.StartDate, sa.Deadline, "", completed, now)
			for _, member := range sa.Members {
				l := &model.Log{
					ProjectName:   p.Name,
					StageKey:      key,
					StageName:     sa.StageName,
					AssignedUser:  member,
					Priority:      model.PriorityMedium,
					StartDate:     p.StartDate,
					StageDeadline: sa.Deadline,
					Status:        string(st),
					IsCompleted:   completed,
					CompletedAt:   completedAt,
				}
				if _, err := s.logs.Insert(ctx, l); err != nil {
					return created, err
				}
				created++
			}
			continue
		}

		for k := range sa.Substages {
			ss := sa.Substages[k]
			completed := p.SubstageDone(i, k)
			var completedAt *time.Time
			if tsMap := p.SubstageTimestamps[key]; tsMap != nil {
				completedAt = tsMap[model.StageKey(k)]
			}
			start := ss.StartDate
			if start == "" {
				start = p.StartDate
			}
			st := status.Calculate(start, sa.Deadline, ss.Deadline, completed, now)
			substageID := ss.ID
			for _, assignee := range ss.Assignees {
				l := &model.Log{
					ProjectName:      p.Name,
					StageKey:         key,
					StageName:        sa.StageName,
					SubstageID:       &substageID,
					SubstageName:     ss.Name,
					AssignedUser:     assignee,
					Description:      ss.Description,
					Priority:         ss.Priority,
					StartDate:        start,
					StageDeadline:    sa.Deadline,
					SubstageDeadline: ss.Deadline,
					Status:           string(st),
					IsCompleted:      completed,
					CompletedAt:      completedAt,
				}
				if _, err := s.logs.Insert(ctx, l); err != nil {
					return created, err
				}
				created++
			}
		}
	}

	metrics.AddLogRebuild(trigger, created)
	s.logger.Info("Rebuilt project logs",
		zap.String("project", p.Name),
		zap.Int64("deleted", deleted),
		zap.Int("created", created),
	)
	return created, nil
}

// RebuildAll regenerates the logs of every project. Exposed as the bulk sync
// operation for admins.
func (s *LogSynchronizer) RebuildAll(ctx context.Context) (int, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, p := range projects {
		n, err := s.RebuildProject(ctx, p, TriggerFullSync)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SyncCompletion reconciles the completion flags of a project's logs with the
// project document after a progression event. Unlike a rebuild this is
// non-destructive: extension and pending state on untouched logs survives.
func (s *LogSynchronizer) SyncCompletion(ctx context.Context, p *model.Project) error {
	now := s.now()

	for i := range p.Levels {
		sa, ok := p.Stage(i)
		if !ok {
			continue
		}
		key := model.StageKey(i)

		if len(sa.Substages) == 0 {
			if err := s.syncTuple(ctx, p, key, nil, p.StartDate, sa.Deadline, "", i <= p.Level, stageCompletedAt(p, key), now); err != nil {
				return err
			}
			continue
		}

		for k := range sa.Substages {
			ss := sa.Substages[k]
			start := ss.StartDate
			if start == "" {
				start = p.StartDate
			}
			var completedAt *time.Time
			if tsMap := p.SubstageTimestamps[key]; tsMap != nil {
				completedAt = tsMap[model.StageKey(k)]
			}
			substageID := ss.ID
			if err := s.syncTuple(ctx, p, key, &substageID, start, sa.Deadline, ss.Deadline, p.SubstageDone(i, k), completedAt, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func stageCompletedAt(p *model.Project, key string) *time.Time {
	if ts, ok := p.StageTimestamps[key]; ok {
		t := ts
		return &t
	}
	return nil
}

func (s *LogSynchronizer) syncTuple(ctx context.Context, p *model.Project, stageKey string, substageID *string, start, stageDeadline, substageDeadline string, done bool, completedAt *time.Time, now time.Time) error {
	if done {
		at := now
		if completedAt != nil {
			at = *completedAt
		}
		_, err := s.logs.MarkVerified(ctx, p.Name, stageKey, substageID, at)
		return err
	}
	st := status.Calculate(start, stageDeadline, substageDeadline, false, now)
	_, err := s.logs.MarkUncompleted(ctx, p.Name, stageKey, substageID, string(st))
	return err
}

// GetUserLogs returns a user's logs with date-driven statuses recomputed at
// read time. A changed status is persisted so later reads agree; a failed
// persist still returns the fresh value.
func (s *LogSynchronizer) GetUserLogs(ctx context.Context, user string) ([]*model.Log, error) {
	logs, err := s.logs.FindByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	s.refreshStatuses(ctx, logs)
	return logs, nil
}

// GetProjectLogs returns one project's logs with statuses refreshed.
func (s *LogSynchronizer) GetProjectLogs(ctx context.Context, projectName string) ([]*model.Log, error) {
	logs, err := s.logs.FindByProject(ctx, projectName)
	if err != nil {
		return nil, err
	}
	s.refreshStatuses(ctx, logs)
	return logs, nil
}

func (s *LogSynchronizer) refreshStatuses(ctx context.Context, logs []*model.Log) {
	now := s.now()
	for _, l := range logs {
		if !status.Recalculable(status.Kind(l.Status)) {
			continue
		}
		fresh := status.Calculate(l.StartDate, l.StageDeadline, l.SubstageDeadline, l.IsCompleted, now)
		if string(fresh) == l.Status {
			continue
		}
		if err := s.logs.UpdateStatus(ctx, l.ID, string(fresh)); err != nil {
			s.logger.Warn("Failed to persist recalculated log status",
				zap.Int("id", l.ID),
				zap.String("status", string(fresh)),
				zap.Error(err),
			)
		}
		l.Status = string(fresh)
	}
}

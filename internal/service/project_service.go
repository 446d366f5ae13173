package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/daterules"
	"stageflow/internal/dates"
	"stageflow/internal/model"
	"stageflow/internal/progression"
	"stageflow/pkg/metrics"
)

// ProjectService owns project documents: creation, assignment edits, due date
// shifts, and the completion toggles that drive the progression machine.
type ProjectService struct {
	projects    ProjectStore
	memberships MembershipStore
	logSync     *LogSynchronizer
	completion  *CompletionService
	notifier    Notifier
	cache       SummaryCache
	now         Clock
	logger      *zap.Logger
}

func NewProjectService(
	projects ProjectStore,
	memberships MembershipStore,
	logSync *LogSynchronizer,
	completion *CompletionService,
	notifier Notifier,
	cache SummaryCache,
	now Clock,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projects:    projects,
		memberships: memberships,
		logSync:     logSync,
		completion:  completion,
		notifier:    notifier,
		cache:       cache,
		now:         now,
		logger:      logger,
	}
}

// Create validates and persists a new project. Every substage receives a
// stable id, and each assigned member gets the project in their ongoing
// bucket.
func (s *ProjectService) Create(ctx context.Context, p *model.Project) (int, error) {
	if len(p.Levels) == 0 {
		return 0, ErrNoStages
	}
	p.EnsureMaps()
	p.Level = -1

	if err := normalizeSubstages(p.StageAssignments); err != nil {
		return 0, err
	}
	if err := daterules.ValidateStartBeforeDeadline(p.StartDate, p.DueDate); err != nil {
		return 0, err
	}
	if result := daterules.ValidateAll(p.StageAssignments, p.DueDate); !result.Valid {
		return 0, &DateConflictError{Conflicts: result.Conflicts}
	}

	id, err := s.projects.Insert(ctx, p)
	if err != nil {
		return 0, err
	}
	p.ID = id

	members := p.AllMembers()
	s.ensureOngoing(ctx, members, p.Name)

	if _, err := s.logSync.RebuildProject(ctx, p, TriggerProjectCreate); err != nil {
		s.logger.Error("Failed to build logs for new project",
			zap.String("project", p.Name),
			zap.Error(err),
		)
	}
	s.notifyAssigned(ctx, p.Name, members)

	return id, nil
}

func (s *ProjectService) Get(ctx context.Context, name string) (*model.Project, error) {
	return s.projects.FindByName(ctx, name)
}

func (s *ProjectService) List(ctx context.Context) ([]*model.Project, error) {
	return s.projects.List(ctx)
}

// Delete removes the project and its derived logs.
func (s *ProjectService) Delete(ctx context.Context, name string) error {
	if _, err := s.logSync.logs.DeleteByProject(ctx, name); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, name); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, name)
	return nil
}

// GetSummary returns the project's cached completion view.
func (s *ProjectService) GetSummary(ctx context.Context, name string) (progression.Summary, error) {
	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return progression.Summary{}, err
	}
	return s.completion.Summary(ctx, p), nil
}

// UpdateAssignments replaces the project's stage assignments wholesale. The
// authoritative completion maps are reconciled against the new substage lists
// and the logs are rebuilt.
func (s *ProjectService) UpdateAssignments(ctx context.Context, name string, assignments map[string]model.StageAssignment) (*model.Project, error) {
	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := normalizeSubstages(assignments); err != nil {
		return nil, err
	}
	if result := daterules.ValidateAll(assignments, p.DueDate); !result.Valid {
		return nil, &DateConflictError{Conflicts: result.Conflicts}
	}

	before := memberSet(p)
	p.StageAssignments = assignments
	reconcileCompletion(p)

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, p.Name)

	if _, err := s.logSync.RebuildProject(ctx, p, TriggerAssignmentEdit); err != nil {
		s.logger.Error("Failed to rebuild logs after assignment edit",
			zap.String("project", p.Name),
			zap.Error(err),
		)
	}

	var added []string
	for _, m := range p.AllMembers() {
		if _, ok := before[m]; !ok {
			added = append(added, m)
		}
	}
	s.ensureOngoing(ctx, added, p.Name)
	s.notifyAssigned(ctx, p.Name, added)

	return p, nil
}

// ShiftDueDate moves the project due date. With autoAdjust the stage and
// substage deadlines are rescaled proportionally first; without it any
// deadline left beyond the new due date is a conflict and the shift is
// rejected whole.
func (s *ProjectService) ShiftDueDate(ctx context.Context, name, newDueDate string, autoAdjust bool) (*model.Project, error) {
	if _, err := dates.Parse(newDueDate); err != nil {
		return nil, fmt.Errorf("invalid due date %q", newDueDate)
	}

	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	assignments := p.StageAssignments
	if autoAdjust {
		adjusted, err := daterules.AutoAdjust(assignments, p.DueDate, newDueDate, s.now())
		if err != nil {
			return nil, err
		}
		assignments = adjusted
	}

	if result := daterules.ValidateAll(assignments, newDueDate); !result.Valid {
		return nil, &DateConflictError{Conflicts: result.Conflicts}
	}

	p.StageAssignments = assignments
	p.DueDate = newDueDate

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, p.Name)

	if _, err := s.logSync.RebuildProject(ctx, p, TriggerDueDateShift); err != nil {
		s.logger.Error("Failed to rebuild logs after due date shift",
			zap.String("project", p.Name),
			zap.Error(err),
		)
	}

	s.logger.Info("Project due date shifted",
		zap.String("project", p.Name),
		zap.String("due_date", newDueDate),
		zap.Bool("auto_adjust", autoAdjust),
	)
	return p, nil
}

// ToggleStage completes or reopens a stage.
func (s *ProjectService) ToggleStage(ctx context.Context, name string, stage int, complete bool) (*model.Project, []progression.Effect, error) {
	kind := progression.EventUncheckStage
	if complete {
		kind = progression.EventCompleteStage
	}
	return s.applyEvent(ctx, name, progression.Event{Kind: kind, Stage: stage})
}

// ToggleSubstage completes or unchecks a substage.
func (s *ProjectService) ToggleSubstage(ctx context.Context, name string, stage, substage int, complete bool) (*model.Project, []progression.Effect, error) {
	kind := progression.EventUncheckSubstage
	if complete {
		kind = progression.EventCompleteSubstage
	}
	return s.applyEvent(ctx, name, progression.Event{Kind: kind, Stage: stage, Substage: substage})
}

// applyEvent runs one progression event end to end: machine, persistence,
// log reconciliation, then effects.
func (s *ProjectService) applyEvent(ctx context.Context, name string, ev progression.Event) (*model.Project, []progression.Effect, error) {
	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	effects, err := progression.Apply(p, ev, s.now())
	if err != nil {
		metrics.IncrementStageTransition(string(ev.Kind), "rejected")
		s.logger.Info("Progression event rejected",
			zap.String("project", name),
			zap.String("event", string(ev.Kind)),
			zap.Int("stage", ev.Stage),
			zap.Error(err),
		)
		return nil, nil, err
	}

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, nil, err
	}
	metrics.IncrementStageTransition(string(ev.Kind), "applied")
	s.cache.Invalidate(ctx, p.Name)

	if err := s.logSync.SyncCompletion(ctx, p); err != nil {
		s.logger.Error("Failed to sync logs after progression event",
			zap.String("project", p.Name),
			zap.Error(err),
		)
	}
	s.completion.HandleEffects(ctx, p, effects)

	return p, effects, nil
}

// ValidateDates reports every current deadline ordering conflict.
func (s *ProjectService) ValidateDates(ctx context.Context, name string) (daterules.ValidationResult, error) {
	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return daterules.ValidationResult{}, err
	}
	return daterules.ValidateAll(p.StageAssignments, p.DueDate), nil
}

// Overdue lists not-yet-completed stages and substages whose deadline has
// passed.
func (s *ProjectService) Overdue(ctx context.Context, name string) ([]daterules.OverdueItem, error) {
	p, err := s.projects.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return daterules.Overdue(p.StageAssignments, p.Levels, p.Level, s.now()), nil
}

func (s *ProjectService) ensureOngoing(ctx context.Context, members []string, projectName string) {
	for _, m := range members {
		if err := s.memberships.EnsureOngoing(ctx, m, projectName); err != nil {
			s.logger.Error("Failed to record project membership",
				zap.String("project", projectName),
				zap.String("user", m),
				zap.Error(err),
			)
		}
	}
}

func (s *ProjectService) notifyAssigned(ctx context.Context, projectName string, members []string) {
	if len(members) == 0 {
		return
	}
	err := s.notifier.EnqueueEmail(ctx, mqcontracts.EmailPayload{
		Kind:       mqcontracts.KindTaskAssigned,
		Recipients: members,
		Subject:    fmt.Sprintf("You have been assigned to project %q", projectName),
		Body:       fmt.Sprintf("You have new tasks on project %q.", projectName),
		Project:    projectName,
	})
	if err != nil {
		s.logger.Warn("Failed to enqueue assignment notification",
			zap.String("project", projectName),
			zap.Error(err),
		)
	}
}

// normalizeSubstages mints ids for new substages, defaults missing
// priorities, and validates the rest.
func normalizeSubstages(assignments map[string]model.StageAssignment) error {
	for key, sa := range assignments {
		for i := range sa.Substages {
			ss := &sa.Substages[i]
			if ss.ID == "" {
				ss.ID = uuid.New().String()
			}
			if ss.Priority == "" {
				ss.Priority = model.PriorityMedium
			}
			if !model.ValidPriority(ss.Priority) {
				return fmt.Errorf("%w: %q", ErrInvalidPriority, ss.Priority)
			}
			if err := daterules.ValidateStartBeforeDeadline(ss.StartDate, ss.Deadline); err != nil {
				return err
			}
		}
		assignments[key] = sa
	}
	return nil
}

func parseKey(k string) (int, error) {
	return strconv.Atoi(k)
}

// memberSet snapshots the current member set for diffing after an edit.
func memberSet(p *model.Project) map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range p.AllMembers() {
		set[m] = struct{}{}
	}
	return set
}

// reconcileCompletion trims the completion and timestamp maps to the substage
// lists that survived an assignment edit, and pushes the authoritative flags
// back onto the assignment structs. The level is clamped if completed stages
// lost their standing.
func reconcileCompletion(p *model.Project) {
	p.EnsureMaps()

	valid := make(map[string]int, len(p.StageAssignments))
	for i := range p.Levels {
		valid[model.StageKey(i)] = p.SubstageCount(i)
	}

	for key, subMap := range p.SubstageCompletion {
		count, ok := valid[key]
		if !ok {
			delete(p.SubstageCompletion, key)
			delete(p.SubstageTimestamps, key)
			continue
		}
		for subKey := range subMap {
			if idx, err := parseKey(subKey); err != nil || idx >= count {
				delete(subMap, subKey)
				if tsMap := p.SubstageTimestamps[key]; tsMap != nil {
					delete(tsMap, subKey)
				}
			}
		}
	}

	for i := range p.Levels {
		key := model.StageKey(i)
		sa, ok := p.StageAssignments[key]
		if !ok {
			continue
		}
		for k := range sa.Substages {
			done := p.SubstageDone(i, k)
			sa.Substages[k].Completed = done
			if !done {
				sa.Substages[k].CompletedAt = nil
			} else if tsMap := p.SubstageTimestamps[key]; tsMap != nil {
				sa.Substages[k].CompletedAt = tsMap[model.StageKey(k)]
			}
		}
		p.StageAssignments[key] = sa
	}

	// A completed stage whose new substage list is no longer fully done drags
	// the level back below it.
	for i := 0; i <= p.Level && i < len(p.Levels); i++ {
		if !p.AllSubstagesDone(i) {
			for idx := i; idx < len(p.Levels); idx++ {
				delete(p.StageTimestamps, model.StageKey(idx))
			}
			p.Level = i - 1
			break
		}
	}
}

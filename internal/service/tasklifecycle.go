package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/daterules"
	"stageflow/internal/dates"
	"stageflow/internal/model"
	"stageflow/internal/progression"
	"stageflow/internal/status"
	"stageflow/pkg/metrics"
)

// TaskLifecycleService drives the per-log lifecycle: an assignee marks a task
// complete, an approver verifies it (which is what actually advances the
// project), and deadline extensions are requested and resolved. Completion
// always flows back into the project document through the progression
// machine, never by editing logs alone.
type TaskLifecycleService struct {
	projects   ProjectStore
	logs       LogStore
	completion *CompletionService
	notifier   Notifier
	cache      SummaryCache
	approvers  []string
	now        Clock
	logger     *zap.Logger
}

func NewTaskLifecycleService(
	projects ProjectStore,
	logs LogStore,
	completion *CompletionService,
	notifier Notifier,
	cache SummaryCache,
	approvers []string,
	now Clock,
	logger *zap.Logger,
) *TaskLifecycleService {
	return &TaskLifecycleService{
		projects:   projects,
		logs:       logs,
		completion: completion,
		notifier:   notifier,
		cache:      cache,
		approvers:  approvers,
		now:        now,
		logger:     logger,
	}
}

// MarkComplete moves the assignee's log to Pending Verification. Nothing on
// the project changes until an approver verifies.
func (s *TaskLifecycleService) MarkComplete(ctx context.Context, logID int, user string) (*model.Log, error) {
	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.AssignedUser != user {
		return nil, ErrNotAssignee
	}
	if l.IsCompleted {
		return nil, ErrAlreadyCompleted
	}

	if err := s.logs.UpdateStatus(ctx, l.ID, string(status.PendingVerification)); err != nil {
		return nil, err
	}
	l.Status = string(status.PendingVerification)

	s.logger.Info("Task marked complete, awaiting verification",
		zap.Int("log_id", l.ID),
		zap.String("project", l.ProjectName),
		zap.String("user", user),
	)
	s.notifyApprovers(ctx, l, mqcontracts.KindVerificationRequired,
		fmt.Sprintf("Task on project %q awaits verification", l.ProjectName))

	return l, nil
}

// Verify approves a pending completion. The corresponding progression event
// runs against the project; an out-of-order task surfaces the machine's
// rejection untouched. On success every sibling log completes together.
func (s *TaskLifecycleService) Verify(ctx context.Context, logID int) (*model.Log, error) {
	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.Status != string(status.PendingVerification) {
		return nil, ErrNotPendingVerify
	}

	p, err := s.projects.FindByName(ctx, l.ProjectName)
	if err != nil {
		return nil, err
	}

	ev, err := eventForLog(p, l)
	if err != nil {
		return nil, err
	}

	now := s.now()
	effects, err := progression.Apply(p, ev, now)
	if err != nil {
		metrics.IncrementStageTransition(string(ev.Kind), "rejected")
		return nil, err
	}

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	metrics.IncrementStageTransition(string(ev.Kind), "applied")
	s.cache.Invalidate(ctx, p.Name)

	if _, err := s.logs.MarkVerified(ctx, l.ProjectName, l.StageKey, l.SubstageID, now); err != nil {
		s.logger.Error("Failed to complete sibling logs after verification",
			zap.Int("log_id", l.ID),
			zap.Error(err),
		)
	}
	s.completion.HandleEffects(ctx, p, effects)

	s.logger.Info("Task verified",
		zap.Int("log_id", l.ID),
		zap.String("project", l.ProjectName),
		zap.String("stage_key", l.StageKey),
	)
	s.notifyUser(ctx, l.AssignedUser, l, mqcontracts.KindTaskVerified,
		fmt.Sprintf("Your task on project %q was verified", l.ProjectName))

	return s.logs.FindByID(ctx, logID)
}

// RejectCompletion returns a pending-verification log to its date-derived
// status.
func (s *TaskLifecycleService) RejectCompletion(ctx context.Context, logID int) (*model.Log, error) {
	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.Status != string(status.PendingVerification) {
		return nil, ErrNotPendingVerify
	}

	fresh := status.Calculate(l.StartDate, l.StageDeadline, l.SubstageDeadline, false, s.now())
	if err := s.logs.UpdateStatus(ctx, l.ID, string(fresh)); err != nil {
		return nil, err
	}
	l.Status = string(fresh)
	return l, nil
}

// RequestExtension records a deadline extension request on the assignee's
// log and parks it in Pending Deadline Approval.
func (s *TaskLifecycleService) RequestExtension(ctx context.Context, logID int, user, reason string) (*model.Log, error) {
	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.AssignedUser != user {
		return nil, ErrNotAssignee
	}
	if l.IsCompleted {
		return nil, ErrAlreadyCompleted
	}
	if l.ExtensionRequestedBy != nil {
		return nil, ErrExtensionPending
	}

	now := s.now()
	if err := s.logs.RecordExtensionRequest(ctx, l.ID, user, reason, now, string(status.PendingDeadlineApproval)); err != nil {
		return nil, err
	}

	s.logger.Info("Extension requested",
		zap.Int("log_id", l.ID),
		zap.String("project", l.ProjectName),
		zap.String("user", user),
	)
	s.notifyApprovers(ctx, l, mqcontracts.KindExtensionRequested,
		fmt.Sprintf("Deadline extension requested on project %q", l.ProjectName))

	return s.logs.FindByID(ctx, logID)
}

// ApproveExtension writes the new deadline back into the project document,
// revalidates the ordering invariant, and resolves the request on the log and
// its siblings.
func (s *TaskLifecycleService) ApproveExtension(ctx context.Context, logID int, newDeadline string) (*model.Log, error) {
	if _, err := dates.Parse(newDeadline); err != nil {
		return nil, fmt.Errorf("invalid deadline %q", newDeadline)
	}

	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.ExtensionRequestedBy == nil {
		return nil, ErrNoPendingExtension
	}

	p, err := s.projects.FindByName(ctx, l.ProjectName)
	if err != nil {
		return nil, err
	}

	substageDeadline := l.SubstageDeadline
	stageDeadline := l.StageDeadline

	if l.SubstageID != nil {
		i, k, ok := p.FindSubstage(*l.SubstageID)
		if !ok {
			return nil, ErrSubstageGone
		}
		key := model.StageKey(i)
		sa := p.StageAssignments[key]
		sa.Substages[k].Deadline = newDeadline
		p.StageAssignments[key] = sa
		substageDeadline = newDeadline
		stageDeadline = sa.Deadline
	} else {
		key := l.StageKey
		sa, ok := p.StageAssignments[key]
		if !ok {
			return nil, ErrSubstageGone
		}
		sa.Deadline = newDeadline
		p.StageAssignments[key] = sa
		stageDeadline = newDeadline
	}

	if result := daterules.ValidateAll(p.StageAssignments, p.DueDate); !result.Valid {
		return nil, &DateConflictError{Conflicts: result.Conflicts}
	}

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, p.Name)

	now := s.now()
	fresh := status.Calculate(l.StartDate, stageDeadline, substageDeadline, l.IsCompleted, now)
	if err := s.logs.ResolveExtension(ctx, l.ID, substageDeadline, stageDeadline, string(fresh), nil); err != nil {
		return nil, err
	}
	if _, err := s.logs.UpdateSiblingDeadlines(ctx, l.ProjectName, l.StageKey, l.SubstageID, substageDeadline, stageDeadline, string(fresh)); err != nil {
		s.logger.Error("Failed to propagate extended deadline to siblings",
			zap.Int("log_id", l.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Extension approved",
		zap.Int("log_id", l.ID),
		zap.String("project", l.ProjectName),
		zap.String("deadline", newDeadline),
	)
	s.notifyUser(ctx, l.AssignedUser, l, mqcontracts.KindExtensionResolved,
		fmt.Sprintf("Your extension request on project %q was approved", l.ProjectName))

	return s.logs.FindByID(ctx, logID)
}

// RejectExtension clears the pending request, keeps the deadlines as they
// were, and records the approver's notes.
func (s *TaskLifecycleService) RejectExtension(ctx context.Context, logID int, notes string) (*model.Log, error) {
	l, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if l.ExtensionRequestedBy == nil {
		return nil, ErrNoPendingExtension
	}

	fresh := status.Calculate(l.StartDate, l.StageDeadline, l.SubstageDeadline, l.IsCompleted, s.now())
	if err := s.logs.ResolveExtension(ctx, l.ID, l.SubstageDeadline, l.StageDeadline, string(fresh), &notes); err != nil {
		return nil, err
	}

	s.logger.Info("Extension rejected",
		zap.Int("log_id", l.ID),
		zap.String("project", l.ProjectName),
	)
	s.notifyUser(ctx, l.AssignedUser, l, mqcontracts.KindExtensionResolved,
		fmt.Sprintf("Your extension request on project %q was rejected", l.ProjectName))

	return s.logs.FindByID(ctx, logID)
}

// eventForLog maps a log to the progression event its verification implies.
func eventForLog(p *model.Project, l *model.Log) (progression.Event, error) {
	if l.SubstageID != nil {
		i, k, ok := p.FindSubstage(*l.SubstageID)
		if !ok {
			return progression.Event{}, ErrSubstageGone
		}
		return progression.Event{Kind: progression.EventCompleteSubstage, Stage: i, Substage: k}, nil
	}
	stage, err := strconv.Atoi(l.StageKey)
	if err != nil {
		return progression.Event{}, fmt.Errorf("malformed stage key %q", l.StageKey)
	}
	return progression.Event{Kind: progression.EventCompleteStage, Stage: stage}, nil
}

func (s *TaskLifecycleService) notifyApprovers(ctx context.Context, l *model.Log, kind, subject string) {
	if len(s.approvers) == 0 {
		return
	}
	s.enqueue(ctx, s.approvers, l, kind, subject)
}

func (s *TaskLifecycleService) notifyUser(ctx context.Context, user string, l *model.Log, kind, subject string) {
	s.enqueue(ctx, []string{user}, l, kind, subject)
}

func (s *TaskLifecycleService) enqueue(ctx context.Context, recipients []string, l *model.Log, kind, subject string) {
	stage, _ := strconv.Atoi(l.StageKey)
	err := s.notifier.EnqueueEmail(ctx, mqcontracts.EmailPayload{
		Kind:       kind,
		Recipients: recipients,
		Subject:    subject,
		Body:       subject,
		Project:    l.ProjectName,
		Stage:      stage,
	})
	if err != nil {
		s.logger.Warn("Failed to enqueue lifecycle notification",
			zap.String("kind", kind),
			zap.String("project", l.ProjectName),
			zap.Error(err),
		)
	}
}

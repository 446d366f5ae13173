package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/model"
	"stageflow/internal/progression"
)

// CompletionService owns the read side of progression (cached summaries) and
// the side effects owed after a transition: member notifications and the
// ongoing/completed bucket moves when a project reaches or leaves its
// terminal stage.
type CompletionService struct {
	memberships   MembershipStore
	notifier      Notifier
	cache         SummaryCache
	terminalStage string
	now           Clock
	logger        *zap.Logger
}

func NewCompletionService(memberships MembershipStore, notifier Notifier, cache SummaryCache, terminalStage string, now Clock, logger *zap.Logger) *CompletionService {
	return &CompletionService{
		memberships:   memberships,
		notifier:      notifier,
		cache:         cache,
		terminalStage: terminalStage,
		now:           now,
		logger:        logger,
	}
}

// Summary returns the project's completion view, served from cache when
// possible.
func (s *CompletionService) Summary(ctx context.Context, p *model.Project) progression.Summary {
	if cached, ok := s.cache.Get(ctx, p.Name); ok {
		return *cached
	}
	summary := progression.Summarize(p, s.terminalStage)
	s.cache.Set(ctx, p.Name, summary)
	return summary
}

// HandleEffects performs the side effects of an applied transition. Failures
// here are reported but never undo the transition itself.
func (s *CompletionService) HandleEffects(ctx context.Context, p *model.Project, effects []progression.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case progression.EffectStageCompleted:
			s.notifyStage(ctx, p, e, mqcontracts.KindStageCompleted,
				fmt.Sprintf("Stage %q completed on project %q", e.StageName, p.Name))
			if progression.IsProjectComplete(p, s.terminalStage) {
				s.markProjectComplete(ctx, p)
			}
		case progression.EffectStageReopened:
			s.notifyStage(ctx, p, e, mqcontracts.KindStageReopened,
				fmt.Sprintf("Stage %q reopened on project %q", e.StageName, p.Name))
			if e.StageName == s.terminalStage {
				s.reopenProject(ctx, p)
			}
		}
	}
}

func (s *CompletionService) notifyStage(ctx context.Context, p *model.Project, e progression.Effect, kind, subject string) {
	sa, ok := p.Stage(e.Stage)
	if !ok || len(sa.Members) == 0 {
		return
	}
	err := s.notifier.EnqueueEmail(ctx, mqcontracts.EmailPayload{
		Kind:       kind,
		Recipients: sa.Members,
		Subject:    subject,
		Body:       subject,
		Project:    p.Name,
		Stage:      e.Stage,
	})
	if err != nil {
		s.logger.Warn("Failed to enqueue stage notification",
			zap.String("project", p.Name),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// markProjectComplete moves the project to every member's completed bucket.
// Idempotent: members already moved are skipped by the store.
func (s *CompletionService) markProjectComplete(ctx context.Context, p *model.Project) {
	members := p.AllMembers()
	moved := 0
	for _, member := range members {
		ok, err := s.memberships.MoveToCompleted(ctx, member, p.Name)
		if err != nil {
			s.logger.Error("Failed to move project to completed bucket",
				zap.String("project", p.Name),
				zap.String("user", member),
				zap.Error(err),
			)
			continue
		}
		if ok {
			moved++
		}
	}

	s.logger.Info("Project reached terminal stage",
		zap.String("project", p.Name),
		zap.Int("members_moved", moved),
	)

	if len(members) > 0 {
		err := s.notifier.EnqueueEmail(ctx, mqcontracts.EmailPayload{
			Kind:       mqcontracts.KindProjectCompleted,
			Recipients: members,
			Subject:    fmt.Sprintf("Project %q completed", p.Name),
			Body:       fmt.Sprintf("Project %q has completed its final stage.", p.Name),
			Project:    p.Name,
			Stage:      p.Level,
		})
		if err != nil {
			s.logger.Warn("Failed to enqueue project completion notification",
				zap.String("project", p.Name),
				zap.Error(err),
			)
		}
	}
}

// reopenProject returns the project to the ongoing bucket after its terminal
// stage was unchecked.
func (s *CompletionService) reopenProject(ctx context.Context, p *model.Project) {
	for _, member := range p.AllMembers() {
		if _, err := s.memberships.MoveToOngoing(ctx, member, p.Name); err != nil {
			s.logger.Error("Failed to move project back to ongoing bucket",
				zap.String("project", p.Name),
				zap.String("user", member),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("Project reopened from terminal stage", zap.String("project", p.Name))
}

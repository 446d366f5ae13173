// Package service orchestrates project progression, log synchronization, and
// the task completion lifecycle on top of the repositories. Services consume
// narrow store interfaces so tests can substitute in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/internal/daterules"
	"stageflow/internal/model"
	"stageflow/internal/progression"
)

var (
	ErrNoStages           = errors.New("project requires at least one stage")
	ErrInvalidPriority    = errors.New("invalid substage priority")
	ErrNotAssignee        = errors.New("log is not assigned to this user")
	ErrAlreadyCompleted   = errors.New("task is already completed")
	ErrNotPendingVerify   = errors.New("log is not pending verification")
	ErrExtensionPending   = errors.New("log already has a pending extension request")
	ErrNoPendingExtension = errors.New("log has no pending extension request")
	ErrSubstageGone       = errors.New("substage no longer exists on the project")
)

// DateConflictError carries every deadline ordering violation found, so the
// caller can present all of them at once instead of one per round trip.
type DateConflictError struct {
	Conflicts []daterules.Conflict
}

func (e *DateConflictError) Error() string {
	details := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		details[i] = c.Detail
	}
	return fmt.Sprintf("date validation failed: %s", strings.Join(details, "; "))
}

// Clock supplies the current time; tests pin it.
type Clock func() time.Time

type ProjectStore interface {
	Insert(ctx context.Context, p *model.Project) (int, error)
	FindByName(ctx context.Context, name string) (*model.Project, error)
	List(ctx context.Context) ([]*model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, name string) error
}

type LogStore interface {
	Insert(ctx context.Context, l *model.Log) (int, error)
	DeleteByProject(ctx context.Context, projectName string) (int64, error)
	FindByID(ctx context.Context, id int) (*model.Log, error)
	FindByUser(ctx context.Context, user string) ([]*model.Log, error)
	FindByProject(ctx context.Context, projectName string) ([]*model.Log, error)
	FindSiblings(ctx context.Context, projectName, stageKey string, substageID *string) ([]*model.Log, error)
	UpdateStatus(ctx context.Context, id int, statusValue string) error
	MarkVerified(ctx context.Context, projectName, stageKey string, substageID *string, completedAt time.Time) (int64, error)
	MarkUncompleted(ctx context.Context, projectName, stageKey string, substageID *string, statusValue string) (int64, error)
	UpdateSiblingDeadlines(ctx context.Context, projectName, stageKey string, substageID *string, substageDeadline, stageDeadline, statusValue string) (int64, error)
	RecordExtensionRequest(ctx context.Context, id int, requestedBy, reason string, requestedAt time.Time, statusValue string) error
	ResolveExtension(ctx context.Context, id int, substageDeadline, stageDeadline, statusValue string, rejectionNotes *string) error
}

type MembershipStore interface {
	EnsureOngoing(ctx context.Context, userName, projectName string) error
	MoveToCompleted(ctx context.Context, userName, projectName string) (bool, error)
	MoveToOngoing(ctx context.Context, userName, projectName string) (bool, error)
	ListByUser(ctx context.Context, userName, bucket string) ([]string, error)
}

type Notifier interface {
	EnqueueEmail(ctx context.Context, payload mqcontracts.EmailPayload) error
}

type SummaryCache interface {
	Get(ctx context.Context, project string) (*progression.Summary, bool)
	Set(ctx context.Context, project string, s progression.Summary)
	Invalidate(ctx context.Context, project string)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/model"
	"stageflow/internal/progression"
	"stageflow/internal/repository"
)

func TestCreateProject(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	id, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)
	assert.Greater(t, id, 0)

	stored, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, -1, stored.Level)

	// Every substage got a stable id.
	seen := map[string]bool{}
	for i := 0; i < len(stored.Levels); i++ {
		sa, _ := stored.Stage(i)
		for _, ss := range sa.Substages {
			require.NotEmpty(t, ss.ID)
			assert.False(t, seen[ss.ID], "substage ids must be unique")
			seen[ss.ID] = true
			assert.Equal(t, model.PriorityMedium, ss.Priority)
		}
	}

	// One log per assignee per substage, one per member of the bare stage.
	logs, err := env.logs.FindByProject(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Len(t, logs, 5)

	for _, user := range []string{"alice", "bob", "carol"} {
		assert.Equal(t, model.BucketOngoing, env.memberships.bucketOf(user, "acme-onboarding"))
	}
	assert.Contains(t, env.notifier.kinds(), "task_assigned")
}

func TestCreateRequiresStages(t *testing.T) {
	env := newServiceEnv()

	p := fixtureProject()
	p.Levels = nil

	_, err := env.svc.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoStages)
}

func TestCreateRejectsDateConflicts(t *testing.T) {
	env := newServiceEnv()

	p := fixtureProject()
	sa := p.StageAssignments["0"]
	sa.Substages[0].Deadline = "2025-05-15" // past both stage deadline and due date
	p.StageAssignments["0"] = sa

	_, err := env.svc.Create(context.Background(), p)
	var conflictErr *DateConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.NotEmpty(t, conflictErr.Conflicts)

	_, err = env.projects.FindByName(context.Background(), p.Name)
	assert.Error(t, err, "rejected project must not be persisted")
}

func TestCreateRejectsInvalidPriority(t *testing.T) {
	env := newServiceEnv()

	p := fixtureProject()
	sa := p.StageAssignments["0"]
	sa.Substages[0].Priority = "Urgent"
	p.StageAssignments["0"] = sa

	_, err := env.svc.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestToggleSubstageAutoAdvancesStage(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	_, effects, err := env.svc.ToggleSubstage(ctx, "acme-onboarding", 0, 0, true)
	require.NoError(t, err)
	assert.Empty(t, effects)

	p, effects, err := env.svc.ToggleSubstage(ctx, "acme-onboarding", 0, 1, true)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, progression.EffectStageCompleted, effects[0].Kind)
	assert.Equal(t, 0, effects[0].Stage)
	assert.Equal(t, 0, p.Level)

	stored, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Level)

	// Sibling logs of both substages are completed.
	logs, err := env.logs.FindByProject(ctx, "acme-onboarding")
	require.NoError(t, err)
	completed := 0
	for _, l := range logs {
		if l.StageKey == "0" && l.IsCompleted {
			completed++
		}
	}
	assert.Equal(t, 3, completed)

	assert.Contains(t, env.cache.invalidated, "acme-onboarding")
	assert.Contains(t, env.notifier.kinds(), "stage_completed")
}

func TestToggleStageLockedRejected(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	_, _, err = env.svc.ToggleStage(ctx, "acme-onboarding", 1, true)
	assert.ErrorIs(t, err, progression.ErrStageLocked)

	stored, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, -1, stored.Level, "rejected event must not change the project")
}

func completeAllStages(t *testing.T, env *serviceEnv) {
	t.Helper()
	ctx := context.Background()
	_, _, err := env.svc.ToggleSubstage(ctx, "acme-onboarding", 0, 0, true)
	require.NoError(t, err)
	_, _, err = env.svc.ToggleSubstage(ctx, "acme-onboarding", 0, 1, true)
	require.NoError(t, err)
	_, _, err = env.svc.ToggleSubstage(ctx, "acme-onboarding", 1, 0, true)
	require.NoError(t, err)
	_, _, err = env.svc.ToggleStage(ctx, "acme-onboarding", 2, true)
	require.NoError(t, err)
}

func TestTerminalStageMovesBuckets(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	completeAllStages(t, env)

	for _, user := range []string{"alice", "bob", "carol"} {
		assert.Equal(t, model.BucketCompleted, env.memberships.bucketOf(user, "acme-onboarding"))
	}
	assert.Contains(t, env.notifier.kinds(), "project_completed")
}

func TestReopeningTerminalStageRestoresBuckets(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)
	completeAllStages(t, env)

	_, effects, err := env.svc.ToggleStage(ctx, "acme-onboarding", 2, false)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, progression.EffectStageReopened, effects[0].Kind)

	for _, user := range []string{"alice", "bob", "carol"} {
		assert.Equal(t, model.BucketOngoing, env.memberships.bucketOf(user, "acme-onboarding"))
	}
}

func TestShiftDueDateRejectsConflicts(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	_, err = env.svc.ShiftDueDate(ctx, "acme-onboarding", "2025-03-15", false)
	var conflictErr *DateConflictError
	require.ErrorAs(t, err, &conflictErr)

	stored, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, "2025-04-30", stored.DueDate, "rejected shift must not persist")
}

func TestShiftDueDateWithAutoAdjust(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	p, err := env.svc.ShiftDueDate(ctx, "acme-onboarding", "2025-03-20", true)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-20", p.DueDate)

	// Rescaled deadlines still satisfy the ordering invariant.
	result, err := env.svc.ValidateDates(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.True(t, result.Valid, "conflicts: %v", result.Conflicts)
}

func TestUpdateAssignmentsReconcilesCompletion(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	_, _, err = env.svc.ToggleSubstage(ctx, "acme-onboarding", 0, 0, true)
	require.NoError(t, err)

	stored, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)

	// Drop the second substage of the first stage and add dave to the bare
	// terminal stage.
	edited := stored.StageAssignments
	sa := edited["0"]
	sa.Substages = sa.Substages[:1]
	edited["0"] = sa
	terminal := edited["2"]
	terminal.Members = append(terminal.Members, "dave")
	edited["2"] = terminal

	p, err := env.svc.UpdateAssignments(ctx, "acme-onboarding", edited)
	require.NoError(t, err)

	assert.True(t, p.SubstageDone(0, 0), "surviving completion must be kept")
	_, hasStale := p.SubstageCompletion["0"]["1"]
	assert.False(t, hasStale, "completion of a removed substage must be dropped")

	logs, err := env.logs.FindByProject(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Len(t, logs, 4, "1 substage assignee + 1 invoice assignee + 2 terminal members")

	assert.Equal(t, model.BucketOngoing, env.memberships.bucketOf("dave", "acme-onboarding"))
}

func TestOverdueReporting(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	p := fixtureProject()
	sa := p.StageAssignments["0"]
	sa.Substages[0].Deadline = "2025-03-05" // already past the pinned clock
	p.StageAssignments["0"] = sa
	_, err := env.svc.Create(ctx, p)
	require.NoError(t, err)

	items, err := env.svc.Overdue(ctx, "acme-onboarding")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "0", items[0].StageKey)
	assert.Equal(t, "Collect documents", items[0].SubstageName)
	assert.Equal(t, "2025-03-05", items[0].Deadline)
}

func TestGetSummaryUsesCache(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	first, err := env.svc.GetSummary(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalStages)
	assert.False(t, first.Complete)

	cached, ok := env.cache.Get(ctx, "acme-onboarding")
	require.True(t, ok)
	assert.Equal(t, first, *cached)
}

func TestDeleteRemovesProjectAndLogs(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	_, err := env.svc.Create(ctx, fixtureProject())
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, "acme-onboarding"))

	_, err = env.projects.FindByName(ctx, "acme-onboarding")
	assert.Error(t, err)
	logs, err := env.logs.FindByProject(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestToggleUnknownProject(t *testing.T) {
	env := newServiceEnv()

	_, _, err := env.svc.ToggleStage(context.Background(), "missing", 0, true)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/model"
	"stageflow/internal/status"
)

// seedProject stores the fixture directly with pre-minted substage ids,
// bypassing the create validation path.
func seedProject(t *testing.T, env *serviceEnv) *model.Project {
	t.Helper()
	p := fixtureProject()
	p.EnsureMaps()
	id := 0
	for key, sa := range p.StageAssignments {
		for i := range sa.Substages {
			id++
			sa.Substages[i].ID = string(rune('a' + id))
		}
		p.StageAssignments[key] = sa
	}
	_, err := env.projects.Insert(context.Background(), p)
	require.NoError(t, err)
	return p
}

func TestRebuildProjectCreatesLogPerAssignee(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	p := seedProject(t, env)

	created, err := env.logSync.RebuildProject(ctx, p, TriggerFullSync)
	require.NoError(t, err)
	assert.Equal(t, 5, created)

	logs, err := env.logs.FindByProject(ctx, p.Name)
	require.NoError(t, err)
	require.Len(t, logs, 5)

	byUser := map[string]int{}
	stageLevel := 0
	for _, l := range logs {
		byUser[l.AssignedUser]++
		if l.SubstageID == nil {
			stageLevel++
			assert.Equal(t, "Payment", l.StageName)
			assert.Equal(t, "2025-04-30", l.StageDeadline)
			assert.Empty(t, l.SubstageDeadline)
		} else {
			assert.NotEmpty(t, *l.SubstageID)
		}
		// Pinned clock 2025-03-10 sits between start and every deadline.
		assert.Equal(t, string(status.InProgress), l.Status)
		assert.False(t, l.IsCompleted)
	}
	assert.Equal(t, 1, stageLevel, "exactly one stage-level log for the bare terminal stage")
	assert.Equal(t, 2, byUser["alice"], "one log per substage alice is assigned to")
	assert.Equal(t, 2, byUser["bob"])
	assert.Equal(t, 1, byUser["carol"])
}

func TestRebuildUsesAuthoritativeCompletionMap(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	p := seedProject(t, env)

	// The completion map, not the substage's own flag, decides.
	completedAt := testNow.Add(-24 * time.Hour)
	p.SubstageCompletion["0"] = map[string]bool{"0": true}
	p.SubstageTimestamps["0"] = map[string]*time.Time{"0": &completedAt}
	require.NoError(t, env.projects.Update(ctx, p))

	_, err := env.logSync.RebuildProject(ctx, p, TriggerFullSync)
	require.NoError(t, err)

	logs, err := env.logs.FindByProject(ctx, p.Name)
	require.NoError(t, err)

	for _, l := range logs {
		if l.StageKey == "0" && l.SubstageName == "Collect documents" {
			assert.True(t, l.IsCompleted)
			assert.Equal(t, string(status.Completed), l.Status)
			require.NotNil(t, l.CompletedAt)
			assert.Equal(t, completedAt, *l.CompletedAt)
		} else {
			assert.False(t, l.IsCompleted)
		}
	}
}

func TestRebuildAllCoversEveryProject(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	seedProject(t, env)

	second := fixtureProject()
	second.Name = "beta-rollout"
	_, err := env.projects.Insert(ctx, second)
	require.NoError(t, err)

	total, err := env.logSync.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestGetUserLogsRecalculatesOverdue(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	id, err := env.logs.Insert(ctx, &model.Log{
		ProjectName:      "acme-onboarding",
		StageKey:         "0",
		StageName:        "Initial",
		AssignedUser:     "alice",
		StartDate:        "2025-03-01",
		StageDeadline:    "2025-03-31",
		SubstageDeadline: "2025-03-05", // already past the pinned clock
		Status:           string(status.Upcoming),
	})
	require.NoError(t, err)

	logs, err := env.logSync.GetUserLogs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(status.Overdue), logs[0].Status)

	// The recalculated status is persisted, not just returned.
	stored, err := env.logs.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(status.Overdue), stored.Status)
}

func TestGetUserLogsKeepsStickyStatuses(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	_, err := env.logs.Insert(ctx, &model.Log{
		ProjectName:      "acme-onboarding",
		StageKey:         "0",
		AssignedUser:     "alice",
		StartDate:        "2025-03-01",
		SubstageDeadline: "2025-03-05",
		Status:           string(status.PendingVerification),
	})
	require.NoError(t, err)

	logs, err := env.logSync.GetUserLogs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(status.PendingVerification), logs[0].Status)
}

func TestGetUserLogsReportsMalformedDates(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()

	_, err := env.logs.Insert(ctx, &model.Log{
		ProjectName:   "acme-onboarding",
		StageKey:      "0",
		AssignedUser:  "alice",
		StartDate:     "03/01/2025",
		StageDeadline: "2025-03-31",
		Status:        string(status.InProgress),
	})
	require.NoError(t, err)

	logs, err := env.logSync.GetUserLogs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(status.Error), logs[0].Status)
}

func TestSyncCompletionPreservesPendingSiblings(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	p := seedProject(t, env)

	_, err := env.logSync.RebuildProject(ctx, p, TriggerFullSync)
	require.NoError(t, err)

	// One assignee marks their copy complete and awaits verification.
	logs, err := env.logs.FindByProject(ctx, p.Name)
	require.NoError(t, err)
	var pendingID int
	for _, l := range logs {
		if l.AssignedUser == "alice" && l.SubstageName == "Review documents" {
			pendingID = l.ID
		}
	}
	require.NotZero(t, pendingID)
	require.NoError(t, env.logs.UpdateStatus(ctx, pendingID, string(status.PendingVerification)))

	// Reconciling an incomplete project must not clobber the pending state.
	require.NoError(t, env.logSync.SyncCompletion(ctx, p))

	stored, err := env.logs.FindByID(ctx, pendingID)
	require.NoError(t, err)
	assert.Equal(t, string(status.PendingVerification), stored.Status)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/model"
	"stageflow/internal/progression"
	"stageflow/internal/status"
)

// createFixture creates the fixture project through the service so logs and
// substage ids exist, then returns the log matching user and substage name.
func findLog(t *testing.T, env *serviceEnv, user, substageName string) *model.Log {
	t.Helper()
	logs, err := env.logs.FindByProject(context.Background(), "acme-onboarding")
	require.NoError(t, err)
	for _, l := range logs {
		if l.AssignedUser == user && l.SubstageName == substageName {
			return l
		}
	}
	t.Fatalf("no log for user %s substage %q", user, substageName)
	return nil
}

func setupLifecycle(t *testing.T) *serviceEnv {
	t.Helper()
	env := newServiceEnv()
	_, err := env.svc.Create(context.Background(), fixtureProject())
	require.NoError(t, err)
	return env
}

func TestMarkCompleteRequiresAssignee(t *testing.T) {
	env := setupLifecycle(t)
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.MarkComplete(context.Background(), l.ID, "bob")
	assert.ErrorIs(t, err, ErrNotAssignee)
}

func TestMarkCompleteSetsPendingVerification(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	updated, err := env.lifecycle.MarkComplete(ctx, l.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, string(status.PendingVerification), updated.Status)
	assert.False(t, updated.IsCompleted, "completion waits for verification")

	// The project itself is untouched until an approver verifies.
	p, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.False(t, p.SubstageDone(0, 0))

	assert.Contains(t, env.notifier.kinds(), "verification_required")
}

func TestVerifyCompletesSiblingsAndAdvancesProject(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	first := findLog(t, env, "alice", "Collect documents")
	_, err := env.lifecycle.MarkComplete(ctx, first.ID, "alice")
	require.NoError(t, err)
	_, err = env.lifecycle.Verify(ctx, first.ID)
	require.NoError(t, err)

	second := findLog(t, env, "alice", "Review documents")
	_, err = env.lifecycle.MarkComplete(ctx, second.ID, "alice")
	require.NoError(t, err)
	verified, err := env.lifecycle.Verify(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsCompleted)
	assert.Equal(t, string(status.Completed), verified.Status)

	// Bob's copy of the same substage completes with it.
	bobLog := findLog(t, env, "bob", "Review documents")
	assert.True(t, bobLog.IsCompleted)

	// Both substages done: the stage auto-advances.
	p, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Level)
}

func TestVerifyOutOfOrderSurfacesMachineError(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()

	second := findLog(t, env, "alice", "Review documents")
	_, err := env.lifecycle.MarkComplete(ctx, second.ID, "alice")
	require.NoError(t, err)

	_, err = env.lifecycle.Verify(ctx, second.ID)
	assert.ErrorIs(t, err, progression.ErrSubstageOutOfOrder)

	// The log stays pending; nothing advanced.
	stored, err := env.logs.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, string(status.PendingVerification), stored.Status)
}

func TestVerifyRequiresPendingStatus(t *testing.T) {
	env := setupLifecycle(t)
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.Verify(context.Background(), l.ID)
	assert.ErrorIs(t, err, ErrNotPendingVerify)
}

func TestRejectCompletionRestoresDateStatus(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.MarkComplete(ctx, l.ID, "alice")
	require.NoError(t, err)

	rejected, err := env.lifecycle.RejectCompletion(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, string(status.InProgress), rejected.Status)
	assert.False(t, rejected.IsCompleted)
}

func TestRequestExtension(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	updated, err := env.lifecycle.RequestExtension(ctx, l.ID, "alice", "waiting on client documents")
	require.NoError(t, err)
	assert.Equal(t, string(status.PendingDeadlineApproval), updated.Status)
	require.NotNil(t, updated.ExtensionRequestedBy)
	assert.Equal(t, "alice", *updated.ExtensionRequestedBy)

	// A second request on the same log is rejected.
	_, err = env.lifecycle.RequestExtension(ctx, l.ID, "alice", "still waiting")
	assert.ErrorIs(t, err, ErrExtensionPending)

	assert.Contains(t, env.notifier.kinds(), "extension_requested")
}

func TestApproveExtensionWritesBackToProject(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.RequestExtension(ctx, l.ID, "alice", "waiting on client documents")
	require.NoError(t, err)

	approved, err := env.lifecycle.ApproveExtension(ctx, l.ID, "2025-03-28")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-28", approved.SubstageDeadline)
	assert.Equal(t, string(status.InProgress), approved.Status)
	assert.Nil(t, approved.ExtensionRequestedBy)

	// The project document, the source of truth, carries the new deadline.
	p, err := env.projects.FindByName(ctx, "acme-onboarding")
	require.NoError(t, err)
	i, k, ok := p.FindSubstage(*l.SubstageID)
	require.True(t, ok)
	sa, _ := p.Stage(i)
	assert.Equal(t, "2025-03-28", sa.Substages[k].Deadline)
}

func TestApproveExtensionRejectsOrderingConflict(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.RequestExtension(ctx, l.ID, "alice", "need more time")
	require.NoError(t, err)

	// Beyond the stage deadline (2025-03-31) and the project due date.
	_, err = env.lifecycle.ApproveExtension(ctx, l.ID, "2025-05-15")
	var conflictErr *DateConflictError
	require.ErrorAs(t, err, &conflictErr)

	// Request is still pending; deadline unchanged.
	stored, err := env.logs.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ExtensionRequestedBy)
	assert.Equal(t, "2025-03-20", stored.SubstageDeadline)
}

func TestApproveExtensionPropagatesToSiblings(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Review documents")

	_, err := env.lifecycle.RequestExtension(ctx, l.ID, "alice", "reviews are slow")
	require.NoError(t, err)
	_, err = env.lifecycle.ApproveExtension(ctx, l.ID, "2025-03-30")
	require.NoError(t, err)

	bobLog := findLog(t, env, "bob", "Review documents")
	assert.Equal(t, "2025-03-30", bobLog.SubstageDeadline)
}

func TestRejectExtensionKeepsDeadline(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.RequestExtension(ctx, l.ID, "alice", "need more time")
	require.NoError(t, err)

	rejected, err := env.lifecycle.RejectExtension(ctx, l.ID, "deadline is firm")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-20", rejected.SubstageDeadline)
	assert.Equal(t, string(status.InProgress), rejected.Status)
	assert.Nil(t, rejected.ExtensionRequestedBy)
	require.NotNil(t, rejected.ExtensionRejectionNotes)
	assert.Equal(t, "deadline is firm", *rejected.ExtensionRejectionNotes)
}

func TestRequestExtensionOnCompletedTask(t *testing.T) {
	env := setupLifecycle(t)
	ctx := context.Background()
	l := findLog(t, env, "alice", "Collect documents")

	_, err := env.lifecycle.MarkComplete(ctx, l.ID, "alice")
	require.NoError(t, err)
	_, err = env.lifecycle.Verify(ctx, l.ID)
	require.NoError(t, err)

	_, err = env.lifecycle.RequestExtension(ctx, l.ID, "alice", "too late")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

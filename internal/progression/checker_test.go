package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionPercentage(t *testing.T) {
	p := newProject()
	assert.Equal(t, 0.0, CompletionPercentage(p, 0))

	_, err := Apply(p, Event{Kind: EventCompleteSubstage, Stage: 0, Substage: 0}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 50.0, CompletionPercentage(p, 0))

	// No substages: vacuously complete.
	assert.Equal(t, 100.0, CompletionPercentage(p, 2))
}

func TestIsProjectComplete(t *testing.T) {
	p := newProject()
	assert.False(t, IsProjectComplete(p, "Payment"))

	p.Level = 1
	assert.False(t, IsProjectComplete(p, "Payment"))

	p.Level = 2
	assert.True(t, IsProjectComplete(p, "Payment"))
}

func TestSummarize(t *testing.T) {
	p := newProject()
	mustComplete(t, p, 0, 0)
	mustComplete(t, p, 0, 1)

	s := Summarize(p, "Payment")

	assert.Equal(t, "acme-site", s.Project)
	assert.Equal(t, 0, s.Level)
	assert.Equal(t, 3, s.TotalStages)
	assert.InDelta(t, 100.0/3, s.OverallPercent, 0.01)
	assert.False(t, s.Complete)

	require.Len(t, s.Stages, 3)
	assert.Equal(t, StageCompleted, s.Stages[0].State)
	assert.Equal(t, 100.0, s.Stages[0].Percent)
	assert.Equal(t, StageAvailable, s.Stages[1].State)
	assert.Equal(t, StageLocked, s.Stages[2].State)
	assert.Equal(t, "2025-03-01", s.Stages[1].Deadline)
	assert.Equal(t, []string{"bob"}, s.Stages[1].Members)
}

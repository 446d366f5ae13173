package service

import (
	"time"

	"go.uber.org/zap"

	"stageflow/internal/model"
)

// testNow is the pinned clock for every service test.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

const terminalStage = "Payment"

type serviceEnv struct {
	projects    *fakeProjectStore
	logs        *fakeLogStore
	memberships *fakeMembershipStore
	notifier    *fakeNotifier
	cache       *fakeSummaryCache

	logSync    *LogSynchronizer
	completion *CompletionService
	svc        *ProjectService
	lifecycle  *TaskLifecycleService
}

func newServiceEnv() *serviceEnv {
	env := &serviceEnv{
		projects:    newFakeProjectStore(),
		logs:        newFakeLogStore(),
		memberships: newFakeMembershipStore(),
		notifier:    &fakeNotifier{},
		cache:       newFakeSummaryCache(),
	}
	logger := zap.NewNop()
	now := func() time.Time { return testNow }

	env.logSync = NewLogSynchronizer(env.projects, env.logs, now, logger)
	env.completion = NewCompletionService(env.memberships, env.notifier, env.cache, terminalStage, now, logger)
	env.svc = NewProjectService(env.projects, env.memberships, env.logSync, env.completion, env.notifier, env.cache, now, logger)
	env.lifecycle = NewTaskLifecycleService(env.projects, env.logs, env.completion, env.notifier, env.cache, []string{"admin"}, now, logger)
	return env
}

// fixtureProject is a three-stage workflow: the first two stages carry
// substages, the terminal stage is checked off directly by its member.
func fixtureProject() *model.Project {
	return &model.Project{
		Name:        "acme-onboarding",
		Client:      "Acme Corp",
		Description: "Onboarding workflow for Acme",
		StartDate:   "2025-03-01",
		DueDate:     "2025-04-30",
		Levels:      []string{"Initial", "Invoice", "Payment"},
		Level:       -1,
		StageAssignments: map[string]model.StageAssignment{
			"0": {
				StageName: "Initial",
				Members:   []string{"alice", "bob"},
				Deadline:  "2025-03-31",
				Substages: []model.Substage{
					{Name: "Collect documents", Assignees: []string{"alice"}, Deadline: "2025-03-20"},
					{Name: "Review documents", Assignees: []string{"alice", "bob"}, Deadline: "2025-03-25"},
				},
			},
			"1": {
				StageName: "Invoice",
				Members:   []string{"bob"},
				Deadline:  "2025-04-15",
				Substages: []model.Substage{
					{Name: "Send invoice", Assignees: []string{"bob"}, Deadline: "2025-04-10"},
				},
			},
			"2": {
				StageName: "Payment",
				Members:   []string{"carol"},
				Deadline:  "2025-04-30",
			},
		},
	}
}

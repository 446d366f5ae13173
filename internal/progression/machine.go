// Package progression implements the stage/substage completion state machine.
// All cascade behavior (auto-advance of a stage when its last substage
// completes, auto-reopen when a substage of a completed stage is unchecked)
// lives in one Apply function: the caller hands in a Project and an event and
// gets back the effects to perform. Rejected events leave the Project
// untouched.
package progression

import (
	"errors"
	"time"

	"stageflow/internal/model"
)

// Validation failures. All are local to the one operation; none mutate state.
var (
	ErrNoSuchStage         = errors.New("stage index out of range")
	ErrNoSuchSubstage      = errors.New("substage index out of range")
	ErrStageLocked         = errors.New("stage is locked: previous stages are incomplete")
	ErrStageOutOfOrder     = errors.New("stages must be completed in order")
	ErrSubstagesIncomplete = errors.New("stage has incomplete substages")
	ErrStageNotFrontier    = errors.New("only the most recently completed stage can be reopened")
	ErrStageNotCompleted   = errors.New("stage is not completed")
	ErrSubstageOutOfOrder  = errors.New("substages must be completed in order")
	ErrSubstageNotFrontier = errors.New("only the highest completed substage can be unchecked")
)

// StageState is the derived state of one stage index.
type StageState string

const (
	StageLocked    StageState = "locked"    // index > level+1
	StageAvailable StageState = "available" // index == level+1
	StageCompleted StageState = "completed" // index <= level
)

// StateOf derives the state of stage i from the project's level.
func StateOf(p *model.Project, i int) StageState {
	switch {
	case i <= p.Level:
		return StageCompleted
	case i == p.Level+1:
		return StageAvailable
	default:
		return StageLocked
	}
}

// EventKind identifies a completion toggle request.
type EventKind string

const (
	EventCompleteStage    EventKind = "complete_stage"
	EventUncheckStage     EventKind = "uncheck_stage"
	EventCompleteSubstage EventKind = "complete_substage"
	EventUncheckSubstage  EventKind = "uncheck_substage"
)

// Event is one completion toggle against a project.
type Event struct {
	Kind     EventKind
	Stage    int
	Substage int // only for substage events
}

// EffectKind identifies a side effect the caller must perform after a
// successful transition.
type EffectKind string

const (
	// EffectStageCompleted: a stage reached completed (directly or by
	// substage cascade); notify its members.
	EffectStageCompleted EffectKind = "stage_completed"
	// EffectStageReopened: a completed stage was reopened (directly or by
	// substage cascade).
	EffectStageReopened EffectKind = "stage_reopened"
)

// Effect is a side effect owed after a transition.
type Effect struct {
	Kind      EffectKind
	Stage     int
	StageName string
}

// Apply runs one event against the project, cascading as required, and
// returns the effects to perform. On error the project is unchanged.
func Apply(p *model.Project, ev Event, now time.Time) ([]Effect, error) {
	switch ev.Kind {
	case EventCompleteStage:
		return completeStage(p, ev.Stage, now)
	case EventUncheckStage:
		return uncheckStage(p, ev.Stage)
	case EventCompleteSubstage:
		return completeSubstage(p, ev.Stage, ev.Substage, now)
	case EventUncheckSubstage:
		return uncheckSubstage(p, ev.Stage, ev.Substage)
	default:
		return nil, errors.New("unknown progression event")
	}
}

func stageName(p *model.Project, i int) string {
	if i >= 0 && i < len(p.Levels) {
		return p.Levels[i]
	}
	return ""
}

func completeStage(p *model.Project, i int, now time.Time) ([]Effect, error) {
	if i < 0 || i >= len(p.Levels) {
		return nil, ErrNoSuchStage
	}
	if i <= p.Level {
		return nil, ErrStageOutOfOrder
	}
	if i > p.Level+1 {
		return nil, ErrStageLocked
	}
	if !p.AllSubstagesDone(i) {
		return nil, ErrSubstagesIncomplete
	}

	p.EnsureMaps()
	p.Level = i
	p.StageTimestamps[model.StageKey(i)] = now

	return []Effect{{Kind: EffectStageCompleted, Stage: i, StageName: stageName(p, i)}}, nil
}

func uncheckStage(p *model.Project, i int) ([]Effect, error) {
	if i < 0 || i >= len(p.Levels) {
		return nil, ErrNoSuchStage
	}
	if i > p.Level {
		return nil, ErrStageNotCompleted
	}
	if i != p.Level {
		return nil, ErrStageNotFrontier
	}

	retreat(p, i-1)

	return []Effect{{Kind: EffectStageReopened, Stage: i, StageName: stageName(p, i)}}, nil
}

// retreat lowers the level and drops timestamps for every index above it.
func retreat(p *model.Project, newLevel int) {
	p.EnsureMaps()
	for idx := newLevel + 1; idx < len(p.Levels); idx++ {
		delete(p.StageTimestamps, model.StageKey(idx))
	}
	p.Level = newLevel
}

func completeSubstage(p *model.Project, i, k int, now time.Time) ([]Effect, error) {
	sa, ok := p.Stage(i)
	if !ok || i >= len(p.Levels) {
		return nil, ErrNoSuchStage
	}
	if k < 0 || k >= len(sa.Substages) {
		return nil, ErrNoSuchSubstage
	}
	if StateOf(p, i) == StageLocked {
		return nil, ErrStageLocked
	}
	if p.SubstageDone(i, k) {
		// Already complete; toggling again is a no-op.
		return nil, nil
	}
	if k > 0 && !p.SubstageDone(i, k-1) {
		return nil, ErrSubstageOutOfOrder
	}

	p.EnsureMaps()
	markSubstage(p, i, k, true, &now)

	// Completing the last remaining substage of the available stage
	// auto-advances the parent.
	if i == p.Level+1 && p.AllSubstagesDone(i) {
		return completeStage(p, i, now)
	}
	return nil, nil
}

func uncheckSubstage(p *model.Project, i, k int) ([]Effect, error) {
	sa, ok := p.Stage(i)
	if !ok || i >= len(p.Levels) {
		return nil, ErrNoSuchStage
	}
	if k < 0 || k >= len(sa.Substages) {
		return nil, ErrNoSuchSubstage
	}
	if !p.SubstageDone(i, k) {
		// Already incomplete; toggling again is a no-op.
		return nil, nil
	}
	// Retreat only from the frontier, never from the middle.
	for j := k + 1; j < len(sa.Substages); j++ {
		if p.SubstageDone(i, j) {
			return nil, ErrSubstageNotFrontier
		}
	}

	p.EnsureMaps()
	markSubstage(p, i, k, false, nil)

	// Unchecking a substage of an already-completed stage reopens it and
	// cascades the retreat over every later stage.
	if i <= p.Level {
		retreat(p, i-1)
		return []Effect{{Kind: EffectStageReopened, Stage: i, StageName: stageName(p, i)}}, nil
	}
	return nil, nil
}

// markSubstage updates the completion map, the timestamp map, and the
// assignment's own flags together so the document stays internally
// consistent.
func markSubstage(p *model.Project, i, k int, done bool, at *time.Time) {
	key := model.StageKey(i)
	if p.SubstageCompletion[key] == nil {
		p.SubstageCompletion[key] = make(map[string]bool)
	}
	if p.SubstageTimestamps[key] == nil {
		p.SubstageTimestamps[key] = make(map[string]*time.Time)
	}
	p.SubstageCompletion[key][model.StageKey(k)] = done
	p.SubstageTimestamps[key][model.StageKey(k)] = at

	sa := p.StageAssignments[key]
	if k < len(sa.Substages) {
		sa.Substages[k].Completed = done
		sa.Substages[k].CompletedAt = at
		p.StageAssignments[key] = sa
	}
}

package progression

import (
	"stageflow/internal/model"
)

// CompletionPercentage returns completed/total substages of stage i as a
// percentage. A stage with no substages is vacuously 100% complete.
func CompletionPercentage(p *model.Project, i int) float64 {
	total := p.SubstageCount(i)
	if total == 0 {
		return 100
	}
	return float64(p.CompletedSubstages(i)) / float64(total) * 100
}

// IsStageComplete reports whether stage i has been completed.
func IsStageComplete(p *model.Project, i int) bool {
	return i >= 0 && i <= p.Level
}

// IsProjectComplete reports whether the project has reached its terminal
// stage: the highest completed stage carries the terminal sentinel name.
func IsProjectComplete(p *model.Project, terminalStage string) bool {
	return p.Level >= 0 && p.Level < len(p.Levels) && p.Levels[p.Level] == terminalStage
}

// StageSummary is the per-stage render state consumed by the UI.
type StageSummary struct {
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	State    StageState `json:"state"`
	Percent  float64    `json:"percent"`
	Deadline string     `json:"deadline"`
	Members  []string   `json:"members"`
}

// Summary is the whole-project completion view.
type Summary struct {
	Project        string         `json:"project"`
	Level          int            `json:"level"`
	TotalStages    int            `json:"total_stages"`
	OverallPercent float64        `json:"overall_percent"`
	Complete       bool           `json:"complete"`
	Stages         []StageSummary `json:"stages"`
}

// Summarize derives per-stage status plus the overall (level+1)/len(levels)
// completion ratio.
func Summarize(p *model.Project, terminalStage string) Summary {
	s := Summary{
		Project:     p.Name,
		Level:       p.Level,
		TotalStages: len(p.Levels),
		Complete:    IsProjectComplete(p, terminalStage),
	}
	if len(p.Levels) > 0 {
		s.OverallPercent = float64(p.Level+1) / float64(len(p.Levels)) * 100
	}
	for i, name := range p.Levels {
		ss := StageSummary{
			Index:   i,
			Name:    name,
			State:   StateOf(p, i),
			Percent: CompletionPercentage(p, i),
		}
		if sa, ok := p.Stage(i); ok {
			ss.Deadline = sa.Deadline
			ss.Members = sa.Members
		}
		s.Stages = append(s.Stages, ss)
	}
	return s
}

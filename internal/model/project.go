package model

import (
	"strconv"
	"time"
)

// Substage priorities.
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Substage is a sub-task within a stage, independently assigned and completed.
// Dates are kept as document strings ("2006-01-02" or "2006-01-02 15:04:05");
// parsing happens at the edges so a malformed date degrades to an Error status
// instead of failing the whole document load.
type Substage struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Assignees   []string   `json:"assignees"`
	Deadline    string     `json:"deadline"`
	StartDate   string     `json:"start_date"`
	Priority    string     `json:"priority"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

// StageAssignment describes one ordered stage of a project's workflow.
type StageAssignment struct {
	StageName string     `json:"stage_name"`
	Members   []string   `json:"members"`
	Deadline  string     `json:"deadline"`
	Substages []Substage `json:"substages"`
}

// Project is the authoritative document. Level is the index of the highest
// completed stage (-1 = none). The nested maps are keyed by stage index as a
// string, substage maps by substage index as a string.
type Project struct {
	ID                 int                              `json:"id"`
	Name               string                           `json:"name"`
	Client             string                           `json:"client"`
	Description        string                           `json:"description"`
	StartDate          string                           `json:"start_date"`
	DueDate            string                           `json:"due_date"`
	Levels             []string                         `json:"levels"`
	Level              int                              `json:"level"`
	StageTimestamps    map[string]time.Time             `json:"stage_timestamps"`
	StageAssignments   map[string]StageAssignment       `json:"stage_assignments"`
	SubstageCompletion map[string]map[string]bool       `json:"substage_completion"`
	SubstageTimestamps map[string]map[string]*time.Time `json:"substage_timestamps"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
}

// StageKey converts a stage index to its document map key.
func StageKey(i int) string {
	return strconv.Itoa(i)
}

// EnsureMaps initializes any nil document maps so mutation paths never have
// to nil-check them individually.
func (p *Project) EnsureMaps() {
	if p.StageTimestamps == nil {
		p.StageTimestamps = make(map[string]time.Time)
	}
	if p.StageAssignments == nil {
		p.StageAssignments = make(map[string]StageAssignment)
	}
	if p.SubstageCompletion == nil {
		p.SubstageCompletion = make(map[string]map[string]bool)
	}
	if p.SubstageTimestamps == nil {
		p.SubstageTimestamps = make(map[string]map[string]*time.Time)
	}
}

// Stage returns the assignment for stage index i, if present.
func (p *Project) Stage(i int) (StageAssignment, bool) {
	sa, ok := p.StageAssignments[StageKey(i)]
	return sa, ok
}

// SubstageDone reports completion of substage k of stage i from the
// authoritative completion map.
func (p *Project) SubstageDone(i, k int) bool {
	stage, ok := p.SubstageCompletion[StageKey(i)]
	if !ok {
		return false
	}
	return stage[StageKey(k)]
}

// SubstageCount returns the number of substages declared for stage i.
func (p *Project) SubstageCount(i int) int {
	sa, ok := p.Stage(i)
	if !ok {
		return 0
	}
	return len(sa.Substages)
}

// CompletedSubstages counts completed substages of stage i.
func (p *Project) CompletedSubstages(i int) int {
	n := 0
	for k := 0; k < p.SubstageCount(i); k++ {
		if p.SubstageDone(i, k) {
			n++
		}
	}
	return n
}

// AllSubstagesDone reports whether every declared substage of stage i is
// complete. Vacuously true for a stage with no substages.
func (p *Project) AllSubstagesDone(i int) bool {
	return p.CompletedSubstages(i) == p.SubstageCount(i)
}

// FindSubstage locates a substage by its stable id, returning the stage and
// substage indices.
func (p *Project) FindSubstage(substageID string) (stageIdx, subIdx int, ok bool) {
	for i := 0; i < len(p.Levels); i++ {
		sa, found := p.Stage(i)
		if !found {
			continue
		}
		for k := range sa.Substages {
			if sa.Substages[k].ID == substageID {
				return i, k, true
			}
		}
	}
	return 0, 0, false
}

// Members returns the deduplicated set of users assigned anywhere on the
// project (stage members and substage assignees).
func (p *Project) AllMembers() []string {
	seen := make(map[string]struct{})
	var members []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		members = append(members, name)
	}
	for i := 0; i < len(p.Levels); i++ {
		sa, ok := p.Stage(i)
		if !ok {
			continue
		}
		for _, m := range sa.Members {
			add(m)
		}
		for _, ss := range sa.Substages {
			for _, a := range ss.Assignees {
				add(a)
			}
		}
	}
	return members
}

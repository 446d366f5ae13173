// Package daterules holds the pure deadline validation and derivation rules:
// substage deadline <= stage deadline <= project due date, proportional
// rescaling when a due date shifts, and overdue reporting. Nothing here
// touches storage; callers apply the returned values.
package daterules

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"stageflow/internal/dates"
	"stageflow/internal/model"
)

// ConflictKind labels one deadline ordering violation.
type ConflictKind string

const (
	StageVsProject    ConflictKind = "stage_vs_project"
	SubstageVsProject ConflictKind = "substage_vs_project"
	SubstageVsStage   ConflictKind = "substage_vs_stage"
	InvalidFormat     ConflictKind = "invalid_format"
)

// Conflict describes a single violation found by ValidateAll.
type Conflict struct {
	Kind         ConflictKind `json:"kind"`
	StageKey     string       `json:"stage_key"`
	StageName    string       `json:"stage_name"`
	SubstageID   string       `json:"substage_id,omitempty"`
	SubstageName string       `json:"substage_name,omitempty"`
	Deadline     string       `json:"deadline"`
	Limit        string       `json:"limit,omitempty"`
	Detail       string       `json:"detail"`
}

// ValidationResult is the outcome of ValidateAll.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Conflicts []Conflict `json:"conflicts"`
}

// sortedStageKeys returns stage keys in numeric order so conflict output is
// deterministic.
func sortedStageKeys(assignments map[string]model.StageAssignment) []string {
	keys := make([]string, 0, len(assignments))
	for k := range assignments {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	return keys
}

// ValidateAll checks every stage and substage deadline against the ordering
// invariant. Unparseable dates are reported as invalid_format conflicts, not
// errors; a missing (empty) deadline is simply skipped.
func ValidateAll(assignments map[string]model.StageAssignment, projectDueDate string) ValidationResult {
	var conflicts []Conflict

	var projectDue time.Time
	haveProjectDue := false
	if projectDueDate != "" {
		d, err := dates.Parse(projectDueDate)
		if err != nil {
			conflicts = append(conflicts, Conflict{
				Kind:     InvalidFormat,
				Deadline: projectDueDate,
				Detail:   "project due date is not a valid date",
			})
		} else {
			projectDue = d
			haveProjectDue = true
		}
	}

	for _, key := range sortedStageKeys(assignments) {
		sa := assignments[key]

		var stageDeadline time.Time
		haveStageDeadline := false
		if sa.Deadline != "" {
			d, err := dates.Parse(sa.Deadline)
			if err != nil {
				conflicts = append(conflicts, Conflict{
					Kind:      InvalidFormat,
					StageKey:  key,
					StageName: sa.StageName,
					Deadline:  sa.Deadline,
					Detail:    fmt.Sprintf("stage %q deadline is not a valid date", sa.StageName),
				})
			} else {
				stageDeadline = d
				haveStageDeadline = true
				if haveProjectDue && dates.AfterDay(stageDeadline, projectDue) {
					conflicts = append(conflicts, Conflict{
						Kind:      StageVsProject,
						StageKey:  key,
						StageName: sa.StageName,
						Deadline:  sa.Deadline,
						Limit:     projectDueDate,
						Detail:    fmt.Sprintf("stage %q deadline exceeds the project due date", sa.StageName),
					})
				}
			}
		}

		for _, ss := range sa.Substages {
			if ss.Deadline == "" {
				continue
			}
			d, err := dates.Parse(ss.Deadline)
			if err != nil {
				conflicts = append(conflicts, Conflict{
					Kind:         InvalidFormat,
					StageKey:     key,
					StageName:    sa.StageName,
					SubstageID:   ss.ID,
					SubstageName: ss.Name,
					Deadline:     ss.Deadline,
					Detail:       fmt.Sprintf("substage %q deadline is not a valid date", ss.Name),
				})
				continue
			}
			if haveProjectDue && dates.AfterDay(d, projectDue) {
				conflicts = append(conflicts, Conflict{
					Kind:         SubstageVsProject,
					StageKey:     key,
					StageName:    sa.StageName,
					SubstageID:   ss.ID,
					SubstageName: ss.Name,
					Deadline:     ss.Deadline,
					Limit:        projectDueDate,
					Detail:       fmt.Sprintf("substage %q deadline exceeds the project due date", ss.Name),
				})
			}
			if haveStageDeadline && dates.AfterDay(d, stageDeadline) {
				conflicts = append(conflicts, Conflict{
					Kind:         SubstageVsStage,
					StageKey:     key,
					StageName:    sa.StageName,
					SubstageID:   ss.ID,
					SubstageName: ss.Name,
					Deadline:     ss.Deadline,
					Limit:        sa.Deadline,
					Detail:       fmt.Sprintf("substage %q deadline exceeds the stage deadline", ss.Name),
				})
			}
		}
	}

	return ValidationResult{
		Valid:     len(conflicts) == 0,
		Conflicts: conflicts,
	}
}

// ValidateStartBeforeDeadline checks start_date <= deadline for a substage.
func ValidateStartBeforeDeadline(startDate, deadline string) error {
	if startDate == "" || deadline == "" {
		return nil
	}
	start, err := dates.Parse(startDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q", startDate)
	}
	end, err := dates.Parse(deadline)
	if err != nil {
		return fmt.Errorf("invalid deadline %q", deadline)
	}
	if dates.AfterDay(start, end) {
		return fmt.Errorf("start date %s is after deadline %s", startDate, deadline)
	}
	return nil
}

// AutoAdjust proportionally rescales every stage and substage deadline when
// the project due date moves, by the ratio of the new to old remaining
// duration counted from now. Any rescaled date that would still exceed the
// new due date is clamped to it. The input map is not modified; this is an
// opt-in remediation, never applied silently.
func AutoAdjust(assignments map[string]model.StageAssignment, oldDueDate, newDueDate string, now time.Time) (map[string]model.StageAssignment, error) {
	oldDue, err := dates.Parse(oldDueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid old due date: %w", err)
	}
	newDue, err := dates.Parse(newDueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid new due date: %w", err)
	}

	today := dates.Day(now)
	oldRemaining := dates.Day(oldDue).Sub(today)
	newRemaining := dates.Day(newDue).Sub(today)

	rescale := func(deadline string) string {
		if deadline == "" {
			return deadline
		}
		d, err := dates.Parse(deadline)
		if err != nil {
			// Unparseable deadlines are left for ValidateAll to report.
			return deadline
		}
		adjusted := dates.Day(d)
		if oldRemaining > 0 {
			offset := adjusted.Sub(today)
			scaled := time.Duration(float64(offset) * float64(newRemaining) / float64(oldRemaining))
			adjusted = today.Add(scaled.Round(24 * time.Hour))
		}
		if dates.AfterDay(adjusted, newDue) {
			adjusted = dates.Day(newDue)
		}
		return dates.Format(adjusted)
	}

	out := make(map[string]model.StageAssignment, len(assignments))
	for key, sa := range assignments {
		adjusted := sa
		adjusted.Deadline = rescale(sa.Deadline)
		adjusted.Substages = make([]model.Substage, len(sa.Substages))
		for i, ss := range sa.Substages {
			adjusted.Substages[i] = ss
			adjusted.Substages[i].Deadline = rescale(ss.Deadline)
		}
		out[key] = adjusted
	}
	return out, nil
}

// OverdueItem is one not-yet-completed entry whose deadline has passed.
type OverdueItem struct {
	StageKey     string `json:"stage_key"`
	StageName    string `json:"stage_name"`
	SubstageID   string `json:"substage_id,omitempty"`
	SubstageName string `json:"substage_name,omitempty"`
	Deadline     string `json:"deadline"`
}

// Overdue returns stage and substage entries whose deadline is strictly
// before today and which are not yet completed. Completed stages (index <=
// current level) and completed substages are never overdue.
func Overdue(assignments map[string]model.StageAssignment, levels []string, level int, now time.Time) []OverdueItem {
	var items []OverdueItem

	for _, key := range sortedStageKeys(assignments) {
		idx, err := strconv.Atoi(key)
		if err != nil || idx <= level || idx >= len(levels) {
			continue
		}
		sa := assignments[key]

		if sa.Deadline != "" {
			if d, err := dates.Parse(sa.Deadline); err == nil && dates.BeforeDay(d, now) {
				items = append(items, OverdueItem{
					StageKey:  key,
					StageName: sa.StageName,
					Deadline:  sa.Deadline,
				})
			}
		}

		for _, ss := range sa.Substages {
			if ss.Completed || ss.Deadline == "" {
				continue
			}
			if d, err := dates.Parse(ss.Deadline); err == nil && dates.BeforeDay(d, now) {
				items = append(items, OverdueItem{
					StageKey:     key,
					StageName:    sa.StageName,
					SubstageID:   ss.ID,
					SubstageName: ss.Name,
					Deadline:     ss.Deadline,
				})
			}
		}
	}

	return items
}

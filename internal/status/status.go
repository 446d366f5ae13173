// Package status derives a task's lifecycle status from its dates and
// completion flag. The calculation runs both when logs are generated and on
// every read, so day-boundary transitions surface without a scheduler.
package status

import (
	"time"

	"stageflow/internal/dates"
)

// Kind is a task lifecycle status.
type Kind string

const (
	Upcoming   Kind = "Upcoming"
	InProgress Kind = "In Progress"
	Overdue    Kind = "Overdue"
	Completed  Kind = "Completed"
	NoDeadline Kind = "No Deadline Set"
	Error      Kind = "Error"
	// Unknown is a defensive fallback; the date branches below are exhaustive
	// once an effective deadline is resolved, so it should never be returned.
	Unknown Kind = "Unknown"

	// Lifecycle-only statuses carried on logs, never produced by Calculate.
	PendingVerification     Kind = "Pending Verification"
	PendingDeadlineApproval Kind = "Pending Deadline Approval"
)

// Recalculable reports whether a stored status may be overwritten by a
// date-driven recalculation on read. Completion and the two pending states
// are sticky until resolved by their own transitions.
func Recalculable(k Kind) bool {
	switch k {
	case Completed, PendingVerification, PendingDeadlineApproval:
		return false
	}
	return true
}

// Calculate derives the status of a task. The effective deadline is the
// earlier of the stage and substage deadlines when both are set, since either
// one can block progress. A malformed date yields Error rather than an error
// return: the record is reported as broken, not retried.
func Calculate(startDate, stageDeadline, substageDeadline string, completed bool, now time.Time) Kind {
	if completed {
		return Completed
	}

	start, err := dates.Parse(startDate)
	if err != nil {
		return Error
	}

	var deadline time.Time
	haveDeadline := false

	if stageDeadline != "" {
		d, err := dates.Parse(stageDeadline)
		if err != nil {
			return Error
		}
		deadline = d
		haveDeadline = true
	}
	if substageDeadline != "" {
		d, err := dates.Parse(substageDeadline)
		if err != nil {
			return Error
		}
		if haveDeadline {
			deadline = dates.Min(deadline, d)
		} else {
			deadline = d
			haveDeadline = true
		}
	}

	if !haveDeadline {
		return NoDeadline
	}

	switch {
	case dates.AfterDay(now, deadline):
		return Overdue
	case !dates.AfterDay(start, now): // start <= today <= deadline
		return InProgress
	case dates.AfterDay(start, now):
		return Upcoming
	}

	return Unknown
}

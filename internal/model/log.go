package model

import "time"

// Log is a derived, per-assignee record of a substage (or bare stage) task.
// Logs are a read-optimized projection rebuilt from the Project document;
// they are never the source of truth for completion.
type Log struct {
	ID           int     `json:"id"`
	ProjectName  string  `json:"project_name"`
	StageKey     string  `json:"stage_key"`
	StageName    string  `json:"stage_name"`
	SubstageID   *string `json:"substage_id"` // nil for stage-level logs
	SubstageName string  `json:"substage_name"`
	AssignedUser string  `json:"assigned_user"`
	Description  string  `json:"description"`
	Priority     string  `json:"priority"`

	StartDate        string `json:"start_date"`
	StageDeadline    string `json:"stage_deadline"`
	SubstageDeadline string `json:"substage_deadline"`

	Status      string     `json:"status"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`

	// Deadline-extension request state.
	ExtensionRequestedBy    *string    `json:"extension_requested_by"`
	ExtensionRequestedAt    *time.Time `json:"extension_requested_at"`
	ExtensionReason         *string    `json:"extension_reason"`
	ExtensionRejectionNotes *string    `json:"extension_rejection_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

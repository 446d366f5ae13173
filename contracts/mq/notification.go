package mq

// Routing keys on the events exchange.
const (
	RoutingKeyNotificationEmail = "notification.email"
)

// Notification kinds carried in EmailPayload.Kind.
const (
	KindStageCompleted       = "stage_completed"
	KindStageReopened        = "stage_reopened"
	KindProjectCompleted     = "project_completed"
	KindTaskAssigned         = "task_assigned"
	KindTaskVerified         = "task_verified"
	KindVerificationRequired = "verification_required"
	KindExtensionRequested   = "extension_requested"
	KindExtensionResolved    = "extension_resolved"
)

// EmailPayload is the notification.email event. Recipients are usernames;
// the worker resolves them to addresses at delivery time.
type EmailPayload struct {
	Kind       string   `json:"kind"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Project    string   `json:"project"`
	Stage      int      `json:"stage"`
	TraceID    string   `json:"trace_id,omitempty"`
}

package audit

import "time"

// Action names an audited verification step.
type Action string

const (
	ActionApplicationCreated Action = "application_created"
	ActionRoomJoined         Action = "room_joined"
	ActionFacetSubmitted     Action = "facet_submitted"
	ActionFacetReset         Action = "facet_reset"
	ActionStatusChanged      Action = "status_changed"
	ActionAccessDenied       Action = "access_denied"
)

// Outcome values recorded on events.
const (
	OutcomeVerified   = "verified"
	OutcomeUnverified = "unverified"
	OutcomeRejected   = "rejected"
	OutcomeOK         = "ok"
)

// Event is emitted from the verification engine to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ApplicationID string    `json:"applicationId"`
	SubjectID     string    `json:"subjectId"`
	Action        Action    `json:"action"`
	Facet         string    `json:"facet,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

package verification

import (
	"time"

	"lms/internal/application/models"
)

// Outbound payloads. Field names are the wire contract of the realtime channel.

type JoinedPayload struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

type PhotoCapturedPayload struct {
	Timestamp time.Time        `json:"timestamp"`
	Location  *models.GeoPoint `json:"location,omitempty"`
}

type LocationVerifiedPayload struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

type WitnessVerifiedPayload struct {
	WitnessName string    `json:"witnessName"`
	Timestamp   time.Time `json:"timestamp"`
}

type IDVerifiedPayload struct {
	Verified   bool    `json:"verified"`
	MatchScore float64 `json:"matchScore"`
	Message    string  `json:"message"`
}

type MobileMoneyVerifiedPayload struct {
	Provider    string `json:"provider"`
	Verified    bool   `json:"verified"`
	AccountName string `json:"accountName"`
}

type OfficerConnectedPayload struct {
	OfficerID string    `json:"officerId"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessagePayload struct {
	Sender     string    `json:"sender"`
	SenderRole string    `json:"senderRole"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

type FacetResetPayload struct {
	Facet     string    `json:"facet"`
	ResetBy   string    `json:"resetBy"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusChangedPayload struct {
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus"`
	ChangedBy      string    `json:"changedBy"`
	Note           string    `json:"note"`
	Timestamp      time.Time `json:"timestamp"`
}

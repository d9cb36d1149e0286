package verification

import (
	"regexp"
	"strings"

	"lms/internal/application/models"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
)

// EventType is the closed set of inbound realtime events.
type EventType string

const (
	EventJoinApplication   EventType = "join-application"
	EventLeaveApplication  EventType = "leave-application"
	EventCapturePhoto      EventType = "capture-photo"
	EventVerifyLocation    EventType = "verify-location"
	EventVerifyWitness     EventType = "verify-witness"
	EventVerifyID          EventType = "verify-id"
	EventVerifyMobileMoney EventType = "verify-mobile-money"
	EventOfficerJoin       EventType = "officer-join"
	EventSendMessage       EventType = "send-message"
	EventResetFacet        EventType = "reset-facet"
)

// Operations reachable only over HTTP share the metric label space.
const (
	EventCreateApplication EventType = "create-application"
	EventTransitionStatus  EventType = "transition-status"
)

var inboundEvents = map[EventType]struct{}{
	EventJoinApplication:   {},
	EventLeaveApplication:  {},
	EventCapturePhoto:      {},
	EventVerifyLocation:    {},
	EventVerifyWitness:     {},
	EventVerifyID:          {},
	EventVerifyMobileMoney: {},
	EventOfficerJoin:       {},
	EventSendMessage:       {},
	EventResetFacet:        {},
}

// ParseEventType accepts only inbound realtime event names.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(s)
	_, ok := inboundEvents[t]
	return t, ok
}

// Outbound event names.
const (
	OutJoinedApplication   = "joined-application"
	OutLeftApplication     = "left-application"
	OutVerificationStatus  = "verification-status"
	OutPhotoCaptured       = "photo-captured"
	OutLocationVerified    = "location-verified"
	OutWitnessVerified     = "witness-verified"
	OutIDVerified          = "id-verified"
	OutMobileMoneyVerified = "mobile-money-verified"
	OutOfficerConnected    = "officer-connected"
	OutNewMessage          = "new-message"
	OutFacetReset          = "facet-reset"
	OutStatusChanged       = "status-changed"
	OutError               = "error"
)

// Mobile money providers accepted for payment accounts.
const (
	ProviderMpamba      = "mpamba"
	ProviderTNM         = "tnm"
	ProviderAirtelMoney = "airtel_money"
)

// Identity document verification methods.
const (
	MethodAutomated = "automated"
	MethodManual    = "manual"
)

const (
	maxImageBytes   = 8 << 20
	maxTextLength   = 256
	maxMessageRunes = 2000
)

var phonePattern = regexp.MustCompile(`^\+265[0-9]{9}$`)

type CapturePhoto struct {
	ApplicationID id.ApplicationID
	ImageData     string
	Location      *models.GeoPoint
}

func (c CapturePhoto) Validate() error {
	if strings.TrimSpace(c.ImageData) == "" {
		return dErrors.New(dErrors.CodeValidation, "imageData is required")
	}
	if len(c.ImageData) > maxImageBytes {
		return dErrors.New(dErrors.CodeValidation, "imageData is too large")
	}
	if c.Location != nil {
		return validatePoint(*c.Location)
	}
	return nil
}

type VerifyLocation struct {
	ApplicationID id.ApplicationID
	Coordinates   *models.GeoPoint
}

func (c VerifyLocation) Validate() error {
	if c.Coordinates == nil {
		return dErrors.New(dErrors.CodeValidation, "coordinates are required")
	}
	return validatePoint(*c.Coordinates)
}

// WitnessData is the attestation submitted for the witness facet.
type WitnessData struct {
	Name      string
	IDNumber  string
	Signature string
	Photo     string
}

type VerifyWitness struct {
	ApplicationID id.ApplicationID
	Witness       WitnessData
}

func (c VerifyWitness) Validate() error {
	name := strings.TrimSpace(c.Witness.Name)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "witness name is required")
	}
	if len(name) > maxTextLength || len(c.Witness.IDNumber) > maxTextLength {
		return dErrors.New(dErrors.CodeValidation, "witness details are too long")
	}
	if len(c.Witness.Signature) > maxImageBytes || len(c.Witness.Photo) > maxImageBytes {
		return dErrors.New(dErrors.CodeValidation, "witness attachments are too large")
	}
	return nil
}

type VerifyID struct {
	ApplicationID id.ApplicationID
	FrontImage    string
	BackImage     string
	Method        string
}

// Normalize applies defaults. Call before Validate.
func (c *VerifyID) Normalize() {
	c.Method = strings.ToLower(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = MethodAutomated
	}
}

func (c VerifyID) Validate() error {
	if strings.TrimSpace(c.FrontImage) == "" {
		return dErrors.New(dErrors.CodeValidation, "idImages.front is required")
	}
	if len(c.FrontImage) > maxImageBytes || len(c.BackImage) > maxImageBytes {
		return dErrors.New(dErrors.CodeValidation, "idImages are too large")
	}
	if c.Method != MethodAutomated && c.Method != MethodManual {
		return dErrors.New(dErrors.CodeValidation, "verificationMethod must be manual or automated")
	}
	return nil
}

type VerifyMobileMoney struct {
	ApplicationID id.ApplicationID
	Provider      string
	PhoneNumber   string
}

// Normalize lowercases the provider and strips spaces from the phone number.
func (c *VerifyMobileMoney) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.PhoneNumber = strings.ReplaceAll(strings.TrimSpace(c.PhoneNumber), " ", "")
}

func (c VerifyMobileMoney) Validate() error {
	switch c.Provider {
	case ProviderMpamba, ProviderTNM, ProviderAirtelMoney:
	case "":
		return dErrors.New(dErrors.CodeValidation, "provider is required")
	default:
		return dErrors.New(dErrors.CodeValidation, "provider must be one of mpamba, tnm, airtel_money")
	}
	if !phonePattern.MatchString(c.PhoneNumber) {
		return dErrors.New(dErrors.CodeValidation, "phoneNumber must be +265 followed by 9 digits")
	}
	return nil
}

type SendMessage struct {
	ApplicationID id.ApplicationID
	Message       string
	Type          string
}

func (c *SendMessage) Normalize() {
	c.Message = strings.TrimSpace(c.Message)
	if c.Type == "" {
		c.Type = "text"
	}
}

func (c SendMessage) Validate() error {
	if c.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "message is required")
	}
	if len([]rune(c.Message)) > maxMessageRunes {
		return dErrors.New(dErrors.CodeValidation, "message is too long")
	}
	if len(c.Type) > 32 {
		return dErrors.New(dErrors.CodeValidation, "message type is too long")
	}
	return nil
}

type ResetFacet struct {
	ApplicationID id.ApplicationID
	Facet         string
	Reason        string
}

type TransitionStatus struct {
	ApplicationID id.ApplicationID
	To            string
	Note          string
}

type CreateApplication struct {
	PersonalInfo models.PersonalInfo
	LoanDetails  models.LoanDetails
}

func validatePoint(p models.GeoPoint) error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude must be between -180 and 180")
	}
	if p.Accuracy < 0 {
		return dErrors.New(dErrors.CodeValidation, "accuracy cannot be negative")
	}
	return nil
}

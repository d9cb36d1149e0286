package ws

import (
	"bytes"
	"encoding/json"

	"lms/internal/application/models"
	"lms/internal/verification"
	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
)

// Frame is one inbound message.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// ErrorPayload is unicast to the sender of a refused frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type applicationPayload struct {
	ApplicationID string `json:"applicationId"`
}

type capturePhotoPayload struct {
	ApplicationID string           `json:"applicationId"`
	ImageData     string           `json:"imageData"`
	Location      *models.GeoPoint `json:"location"`
}

type verifyLocationPayload struct {
	ApplicationID string           `json:"applicationId"`
	Coordinates   *models.GeoPoint `json:"coordinates"`
}

type witnessDataPayload struct {
	Name      string `json:"name"`
	IDNumber  string `json:"idNumber"`
	Signature string `json:"signature"`
	Photo     string `json:"photo"`
}

type verifyWitnessPayload struct {
	ApplicationID string             `json:"applicationId"`
	WitnessData   witnessDataPayload `json:"witnessData"`
}

type idImagesPayload struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type verifyIDPayload struct {
	ApplicationID      string          `json:"applicationId"`
	IDImages           idImagesPayload `json:"idImages"`
	VerificationMethod string          `json:"verificationMethod"`
}

type verifyMobileMoneyPayload struct {
	ApplicationID string `json:"applicationId"`
	Provider      string `json:"provider"`
	PhoneNumber   string `json:"phoneNumber"`
}

type sendMessagePayload struct {
	ApplicationID string `json:"applicationId"`
	Message       string `json:"message"`
	Type          string `json:"type"`
}

type resetFacetPayload struct {
	ApplicationID string `json:"applicationId"`
	Facet         string `json:"facet"`
	Reason        string `json:"reason"`
}

type addressed interface {
	appID() string
}

// commandPayload is a frame payload that maps to one coordinator command.
type commandPayload[C any] interface {
	addressed
	command(appID id.ApplicationID) C
}

// decode unmarshals a frame payload and parses its applicationId.
func decode[T addressed](raw json.RawMessage) (T, id.ApplicationID, error) {
	var p T
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return p, id.ApplicationID{}, dErrors.New(dErrors.CodeBadRequest, "payload is required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, id.ApplicationID{}, dErrors.New(dErrors.CodeBadRequest, "invalid payload")
	}
	parsed, err := id.ParseApplicationID(p.appID())
	if err != nil {
		return p, id.ApplicationID{}, err
	}
	return p, parsed, nil
}

func (p applicationPayload) appID() string       { return p.ApplicationID }
func (p capturePhotoPayload) appID() string      { return p.ApplicationID }
func (p verifyLocationPayload) appID() string    { return p.ApplicationID }
func (p verifyWitnessPayload) appID() string     { return p.ApplicationID }
func (p verifyIDPayload) appID() string          { return p.ApplicationID }
func (p verifyMobileMoneyPayload) appID() string { return p.ApplicationID }
func (p sendMessagePayload) appID() string       { return p.ApplicationID }
func (p resetFacetPayload) appID() string        { return p.ApplicationID }

func (p capturePhotoPayload) command(appID id.ApplicationID) verification.CapturePhoto {
	return verification.CapturePhoto{ApplicationID: appID, ImageData: p.ImageData, Location: p.Location}
}

func (p verifyLocationPayload) command(appID id.ApplicationID) verification.VerifyLocation {
	return verification.VerifyLocation{ApplicationID: appID, Coordinates: p.Coordinates}
}

func (p verifyWitnessPayload) command(appID id.ApplicationID) verification.VerifyWitness {
	return verification.VerifyWitness{
		ApplicationID: appID,
		Witness: verification.WitnessData{
			Name:      p.WitnessData.Name,
			IDNumber:  p.WitnessData.IDNumber,
			Signature: p.WitnessData.Signature,
			Photo:     p.WitnessData.Photo,
		},
	}
}

func (p verifyIDPayload) command(appID id.ApplicationID) verification.VerifyID {
	return verification.VerifyID{
		ApplicationID: appID,
		FrontImage:    p.IDImages.Front,
		BackImage:     p.IDImages.Back,
		Method:        p.VerificationMethod,
	}
}

func (p verifyMobileMoneyPayload) command(appID id.ApplicationID) verification.VerifyMobileMoney {
	return verification.VerifyMobileMoney{ApplicationID: appID, Provider: p.Provider, PhoneNumber: p.PhoneNumber}
}

func (p sendMessagePayload) command(appID id.ApplicationID) verification.SendMessage {
	return verification.SendMessage{ApplicationID: appID, Message: p.Message, Type: p.Type}
}

func (p resetFacetPayload) command(appID id.ApplicationID) verification.ResetFacet {
	return verification.ResetFacet{ApplicationID: appID, Facet: p.Facet, Reason: p.Reason}
}

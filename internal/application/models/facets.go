package models

import (
	"time"

	dErrors "lms/pkg/domain-errors"
)

// Facet names one of the five independent verification checks.
type Facet string

const (
	FacetPhoto            Facet = "photo"
	FacetLocation         Facet = "location"
	FacetWitness          Facet = "witness"
	FacetIdentityDocument Facet = "identityDocument"
	FacetPaymentAccount   Facet = "paymentAccount"
)

// AllFacets lists the facets in display order.
var AllFacets = []Facet{FacetPhoto, FacetLocation, FacetWitness, FacetIdentityDocument, FacetPaymentAccount}

func ParseFacet(s string) (Facet, bool) {
	for _, f := range AllFacets {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// GeoPoint is a WGS84 coordinate with optional reported accuracy in metres.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

type PhotoFacet struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	Image      string     `json:"image,omitempty"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
	Location   *GeoPoint  `json:"location,omitempty"`
}

type LocationFacet struct {
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	Coordinates *GeoPoint  `json:"coordinates,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	Message     string     `json:"message,omitempty"`
	CheckedAt   *time.Time `json:"checkedAt,omitempty"`
}

type WitnessFacet struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	Name       string     `json:"name,omitempty"`
	IDNumber   string     `json:"idNumber,omitempty"`
	Signature  string     `json:"signature,omitempty"`
	Photo      string     `json:"photo,omitempty"`
}

type IdentityDocumentFacet struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	FrontImage string     `json:"frontImage,omitempty"`
	BackImage  string     `json:"backImage,omitempty"`
	Method     string     `json:"verificationMethod,omitempty"`
	MatchScore float64    `json:"matchScore"`
	CheckedAt  *time.Time `json:"checkedAt,omitempty"`
}

// NameMatch mirrors the comparison made during the identity document check.
type NameMatch struct {
	IDName      string    `json:"idName"`
	AccountName string    `json:"mobileMoneyName"`
	Match       bool      `json:"match"`
	Score       float64   `json:"score"`
	CheckedAt   time.Time `json:"checkedAt"`
}

type PaymentAccountFacet struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	CheckedAt  *time.Time `json:"checkedAt,omitempty"`
}

// Verification groups the facet records of an application.
type Verification struct {
	Photo            PhotoFacet            `json:"photo"`
	Location         LocationFacet         `json:"location"`
	Witness          WitnessFacet          `json:"witness"`
	IdentityDocument IdentityDocumentFacet `json:"identityDocument"`
	NameMatch        *NameMatch            `json:"nameMatch,omitempty"`
	PaymentAccount   PaymentAccountFacet   `json:"paymentAccount"`
}

// FacetSnapshot is the verified flag of every facet, sent to a joining member.
type FacetSnapshot struct {
	Photo            bool `json:"photo"`
	Location         bool `json:"location"`
	Witness          bool `json:"witness"`
	IdentityDocument bool `json:"identityDocument"`
	PaymentAccount   bool `json:"paymentAccount"`
}

func (a *LoanApplication) Snapshot() FacetSnapshot {
	v := a.Verification
	return FacetSnapshot{
		Photo:            v.Photo.Verified,
		Location:         v.Location.Verified,
		Witness:          v.Witness.Verified,
		IdentityDocument: v.IdentityDocument.Verified,
		PaymentAccount:   v.PaymentAccount.Verified,
	}
}

// FacetVerified reports the verified flag of f.
func (a *LoanApplication) FacetVerified(f Facet) bool {
	v := a.Verification
	switch f {
	case FacetPhoto:
		return v.Photo.Verified
	case FacetLocation:
		return v.Location.Verified
	case FacetWitness:
		return v.Witness.Verified
	case FacetIdentityDocument:
		return v.IdentityDocument.Verified
	case FacetPaymentAccount:
		return v.PaymentAccount.Verified
	}
	return false
}

// CanSubmit rejects a submission that would overwrite verified evidence.
func (a *LoanApplication) CanSubmit(f Facet) error {
	if a.FacetVerified(f) {
		return dErrors.New(dErrors.CodeInvariantViolation, string(f)+" is already verified; reset it before resubmitting")
	}
	return nil
}

// RecordPhoto stores a live capture; the capture itself is the proof.
func (a *LoanApplication) RecordPhoto(image string, location *GeoPoint, now time.Time) error {
	if err := a.CanSubmit(FacetPhoto); err != nil {
		return err
	}
	a.Verification.Photo = PhotoFacet{
		Verified:   true,
		VerifiedAt: timePtr(now),
		Image:      image,
		CapturedAt: timePtr(now),
		Location:   copyPoint(location),
	}
	a.UpdatedAt = now
	return nil
}

// RecordLocation stores the outcome of the location policy.
func (a *LoanApplication) RecordLocation(coords GeoPoint, verified bool, confidence float64, message string, now time.Time) error {
	if err := a.CanSubmit(FacetLocation); err != nil {
		return err
	}
	a.Verification.Location = LocationFacet{
		Verified:    verified,
		VerifiedAt:  verifiedAt(verified, now),
		Coordinates: copyPoint(&coords),
		Confidence:  confidence,
		Message:     message,
		CheckedAt:   timePtr(now),
	}
	a.UpdatedAt = now
	return nil
}

// RecordWitness stores a witness attestation; presence is the proof.
func (a *LoanApplication) RecordWitness(w WitnessFacet, now time.Time) error {
	if err := a.CanSubmit(FacetWitness); err != nil {
		return err
	}
	w.Verified = true
	w.VerifiedAt = timePtr(now)
	a.Verification.Witness = w
	a.UpdatedAt = now
	return nil
}

// RecordIdentityDocument stores the document images with the name comparison
// outcome and mirrors the comparison into NameMatch.
func (a *LoanApplication) RecordIdentityDocument(front, back, method string, match bool, score float64, now time.Time) error {
	if err := a.CanSubmit(FacetIdentityDocument); err != nil {
		return err
	}
	a.Verification.IdentityDocument = IdentityDocumentFacet{
		Verified:   match,
		VerifiedAt: verifiedAt(match, now),
		FrontImage: front,
		BackImage:  back,
		Method:     method,
		MatchScore: score,
		CheckedAt:  timePtr(now),
	}
	a.Verification.NameMatch = &NameMatch{
		IDName:      a.PersonalInfo.FullName,
		AccountName: a.PaymentAccount.AccountName,
		Match:       match,
		Score:       score,
		CheckedAt:   now,
	}
	a.UpdatedAt = now
	return nil
}

// RecordPaymentAccount stores the account details and the provider lookup result.
func (a *LoanApplication) RecordPaymentAccount(details PaymentAccountDetails, now time.Time) error {
	if err := a.CanSubmit(FacetPaymentAccount); err != nil {
		return err
	}
	a.PaymentAccount = details
	a.Verification.PaymentAccount = PaymentAccountFacet{
		Verified:   details.Verified,
		VerifiedAt: verifiedAt(details.Verified, now),
		CheckedAt:  timePtr(now),
	}
	a.UpdatedAt = now
	return nil
}

// ResetFacet clears a facet so it can be verified again. Resetting the payment
// account also clears the stored details; resetting the identity document clears
// the name match mirror.
func (a *LoanApplication) ResetFacet(f Facet, now time.Time) error {
	switch f {
	case FacetPhoto:
		a.Verification.Photo = PhotoFacet{}
	case FacetLocation:
		a.Verification.Location = LocationFacet{}
	case FacetWitness:
		a.Verification.Witness = WitnessFacet{}
	case FacetIdentityDocument:
		a.Verification.IdentityDocument = IdentityDocumentFacet{}
		a.Verification.NameMatch = nil
	case FacetPaymentAccount:
		a.Verification.PaymentAccount = PaymentAccountFacet{}
		a.PaymentAccount = PaymentAccountDetails{}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown facet: "+string(f))
	}
	a.UpdatedAt = now
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func verifiedAt(verified bool, now time.Time) *time.Time {
	if !verified {
		return nil
	}
	return timePtr(now)
}

func copyPoint(p *GeoPoint) *GeoPoint {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

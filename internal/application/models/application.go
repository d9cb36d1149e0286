package models

import (
	"strings"
	"time"

	id "lms/pkg/domain"
	dErrors "lms/pkg/domain-errors"
)

const maxNameLength = 128

// PersonalInfo holds the applicant's identity as declared on the application.
// FullName is the legal name compared against the payment account holder.
type PersonalInfo struct {
	FullName string `json:"fullName"`
	IDNumber string `json:"idNumber"`
}

// LoanDetails is carried on the aggregate but never computed on here.
type LoanDetails struct {
	Amount                float64 `json:"amount"`
	Purpose               string  `json:"purpose"`
	RepaymentPeriodMonths int     `json:"repaymentPeriodMonths"`
}

// PaymentAccountDetails describes the mobile money account funds are paid to.
type PaymentAccountDetails struct {
	Provider    string `json:"provider,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	AccountName string `json:"accountName,omitempty"`
	Verified    bool   `json:"verified"`
}

// StatusEntry is one immutable row of the status ledger.
type StatusEntry struct {
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// LoanApplication is the aggregate root for one loan application.
//
// Invariants:
//   - ID and ApplicantID are assigned at construction and never change
//   - StatusHistory is append-only, starts with the draft entry and is
//     non-decreasing by timestamp; every status change appends exactly one entry
//   - a facet with Verified=true keeps its evidence until ResetFacet
//
// Pointer fields are replaced, never mutated in place, so Clone only needs to
// copy slices.
type LoanApplication struct {
	ID             id.ApplicationID      `json:"id"`
	ApplicantID    id.SubjectID          `json:"applicantId"`
	PersonalInfo   PersonalInfo          `json:"personalInfo"`
	LoanDetails    LoanDetails           `json:"loanDetails"`
	Status         Status                `json:"status"`
	StatusHistory  []StatusEntry         `json:"statusHistory"`
	Verification   Verification          `json:"verification"`
	PaymentAccount PaymentAccountDetails `json:"paymentAccountDetails"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	Version        int64                 `json:"version"`
}

// NewLoanApplication builds a draft application and records the initial
// ledger entry.
func NewLoanApplication(
	applicationID id.ApplicationID,
	applicantID id.SubjectID,
	personal PersonalInfo,
	loan LoanDetails,
	now time.Time,
) (*LoanApplication, error) {
	if applicationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application id is required")
	}
	if applicantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant id is required")
	}
	personal.FullName = strings.TrimSpace(personal.FullName)
	if personal.FullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "full name cannot be empty")
	}
	if len(personal.FullName) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "full name must be 128 characters or less")
	}
	if loan.Amount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "loan amount cannot be negative")
	}
	if loan.RepaymentPeriodMonths < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "repayment period cannot be negative")
	}
	app := &LoanApplication{
		ID:           applicationID,
		ApplicantID:  applicantID,
		PersonalInfo: personal,
		LoanDetails:  loan,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	app.appendHistory(StatusDraft, applicantID.String(), "application created", now)
	return app, nil
}

// IsApplicant reports whether subject owns the application.
func (a *LoanApplication) IsApplicant(subject id.SubjectID) bool {
	return a.ApplicantID == subject
}

// CanTransitionTo checks the lifecycle graph.
// Use with ApplyTransition inside an Update callback.
func (a *LoanApplication) CanTransitionTo(next Status) error {
	if !next.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown status: "+string(next))
	}
	if !a.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot move application from "+string(a.Status)+" to "+string(next))
	}
	return nil
}

// ApplyTransition sets the status and appends the ledger entry.
// Call CanTransitionTo first.
func (a *LoanApplication) ApplyTransition(next Status, changedBy, note string, now time.Time) {
	a.Status = next
	if strings.TrimSpace(note) == "" {
		note = "Status changed to " + string(next)
	}
	a.appendHistory(next, changedBy, note, now)
	a.UpdatedAt = now
}

// TransitionTo validates and applies a status change in one call.
func (a *LoanApplication) TransitionTo(next Status, changedBy, note string, now time.Time) error {
	if err := a.CanTransitionTo(next); err != nil {
		return err
	}
	a.ApplyTransition(next, changedBy, note, now)
	return nil
}

// appendHistory keeps the ledger non-decreasing even if the caller's clock
// steps backwards between writes.
func (a *LoanApplication) appendHistory(status Status, changedBy, note string, now time.Time) {
	if n := len(a.StatusHistory); n > 0 {
		if last := a.StatusHistory[n-1].Timestamp; now.Before(last) {
			now = last
		}
	}
	a.StatusHistory = append(a.StatusHistory, StatusEntry{
		Status:    status,
		ChangedBy: changedBy,
		Timestamp: now,
		Note:      note,
	})
}

// Clone returns a copy that can be mutated without affecting a.
func (a *LoanApplication) Clone() *LoanApplication {
	if a == nil {
		return nil
	}
	c := *a
	c.StatusHistory = append([]StatusEntry(nil), a.StatusHistory...)
	return &c
}

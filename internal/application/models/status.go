package models

// Status is the lifecycle state of a loan application.
type Status string

const (
	StatusDraft                  Status = "draft"
	StatusSubmitted              Status = "submitted"
	StatusUnderReview            Status = "under_review"
	StatusVerificationInProgress Status = "verification_in_progress"
	StatusApproved               Status = "approved"
	StatusRejected               Status = "rejected"
	StatusDisbursed              Status = "disbursed"
	StatusCompleted              Status = "completed"
	StatusDefaulted              Status = "defaulted"
)

// transitions lists the allowed edges. Defaulted is entered from the
// post-disbursement states by repayment tracking.
var transitions = map[Status][]Status{
	StatusDraft:                  {StatusSubmitted},
	StatusSubmitted:              {StatusUnderReview},
	StatusUnderReview:            {StatusVerificationInProgress},
	StatusVerificationInProgress: {StatusApproved, StatusRejected},
	StatusApproved:               {StatusDisbursed},
	StatusDisbursed:              {StatusCompleted, StatusDefaulted},
	StatusCompleted:              {StatusDefaulted},
}

// ParseStatus validates a raw status name.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if st.IsValid() {
		return st, true
	}
	return "", false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusVerificationInProgress,
		StatusApproved, StatusRejected, StatusDisbursed, StatusCompleted, StatusDefaulted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the engine drives no further verification for s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusDefaulted
}

func (s Status) String() string {
	return string(s)
}

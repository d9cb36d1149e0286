// Package domain holds typed identifiers shared by every service.
//
// IDs are distinct named uuid types so an applicant id can never be passed where
// an application id is expected. Parse* functions are the only way raw input
// becomes an ID and they reject the nil UUID.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "lms/pkg/domain-errors"
)

// ApplicationID identifies a loan application aggregate.
type ApplicationID uuid.UUID

// SubjectID identifies an authenticated principal (applicant, officer, admin).
type SubjectID uuid.UUID

const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" is too long")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+kind)
	}
	return parsed, nil
}

// ParseApplicationID validates raw input as an application id.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("applicationId", s)
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(u), nil
}

// ParseSubjectID validates raw input as a subject id.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID("subject id", s)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(u), nil
}

// NewApplicationID returns a fresh random application id.
func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.New())
}

func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id SubjectID) String() string { return uuid.UUID(id).String() }
func (id SubjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets IDs appear as plain strings in JSON documents and map keys.
func (id ApplicationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ApplicationID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ApplicationID(u)
	return nil
}

func (id SubjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SubjectID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = SubjectID(u)
	return nil
}

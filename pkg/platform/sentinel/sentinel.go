package sentinel

import "errors"

// Sentinel errors for storage and downstream facts. Stores return these
// (optionally wrapped) and the verification service translates them into
// domain-errors codes:
//   - ErrNotFound: aggregate does not exist
//   - ErrConflict: optimistic write lost a race and retries were exhausted
//   - ErrAlreadyExists: create collided with an existing id
//   - ErrUnavailable: backend or downstream check temporarily unavailable
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
)

// Package store persists loan application aggregates.
//
// Every implementation offers the same read-modify-write contract: Update loads
// the current aggregate, hands a private copy to the mutator and persists it only
// when the mutator returns nil. A mutator error leaves the stored aggregate
// untouched. Version is incremented on every successful write.
package store

import (
	"lms/internal/application/models"
)

// Mutator changes a working copy of an aggregate inside Update.
type Mutator func(app *models.LoanApplication) error


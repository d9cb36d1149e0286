package verification

import (
	"context"

	"lms/internal/application/models"
	"lms/internal/application/store"
	"lms/internal/audit"
	"lms/internal/room"
	id "lms/pkg/domain"
)

// Store is the read-modify-write contract of the application store.
type Store interface {
	Create(ctx context.Context, app *models.LoanApplication) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error)
	Update(ctx context.Context, appID id.ApplicationID, fn store.Mutator) (*models.LoanApplication, error)
}

// Broadcaster is the room membership and fan-out surface.
type Broadcaster interface {
	Join(member room.Member, appID id.ApplicationID)
	Leave(member room.Member, appID id.ApplicationID)
	IsMember(member room.Member, appID id.ApplicationID) bool
	Publish(ctx context.Context, event room.Event) (int, error)
	Send(ctx context.Context, member room.Member, event room.Event) error
}

// LocationResult is the outcome of a location policy check.
type LocationResult struct {
	Verified   bool
	Confidence float64
	Message    string
}

// LocationPolicy decides whether submitted coordinates are acceptable.
type LocationPolicy interface {
	Check(ctx context.Context, point models.GeoPoint) (LocationResult, error)
}

// Account is what a mobile money provider reports for a phone number.
type Account struct {
	HolderName string `json:"holderName"`
	Active     bool   `json:"active"`
}

// AccountLookup resolves a provider account. An unknown account is
// sentinel.ErrNotFound.
type AccountLookup interface {
	Lookup(ctx context.Context, provider, phoneNumber string) (Account, error)
}

// AuditPublisher records verification actions. Failures never fail the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
